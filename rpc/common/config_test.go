package common

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/eKV/lib/cache"
	"github.com/ValentinKolb/eKV/lib/snapshot"
	"github.com/lni/dragonboat/v4/logger"
)

func TestToDBOptions(t *testing.T) {
	dir := t.TempDir()
	conf := EngineConfig{
		CacheCapacity:   7,
		CachePolicy:     "lru",
		LogCapacity:     20,
		GCInterval:      time.Second,
		DataDir:         dir,
		BlobName:        "test.snap",
		Serializer:      "json",
		PersistDebounce: time.Minute,
	}

	opts, err := conf.ToDBOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.CacheCapacity != 7 || opts.CachePolicy != cache.PolicyLRU || opts.LogCapacity != 20 {
		t.Errorf("cache/log options = %d %s %d", opts.CacheCapacity, opts.CachePolicy, opts.LogCapacity)
	}
	if opts.GCInterval != time.Second || opts.PersistDebounce != time.Minute || opts.BlobName != "test.snap" {
		t.Errorf("timing options = %v %v %q", opts.GCInterval, opts.PersistDebounce, opts.BlobName)
	}
	if opts.Serializer.Name() != "json" {
		t.Errorf("serializer = %s, want json", opts.Serializer.Name())
	}
	store, ok := opts.BlobStore.(*snapshot.FileBlobStore)
	if !ok || store.Dir() != dir {
		t.Errorf("blob store = %#v, want a file store in %s", opts.BlobStore, dir)
	}
}

func TestToDBOptionsDefaults(t *testing.T) {
	opts, err := (&EngineConfig{}).ToDBOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.CacheCapacity != cache.DefaultCapacity || opts.CachePolicy != cache.PolicyFIFO {
		t.Errorf("default cache = %d %s", opts.CacheCapacity, opts.CachePolicy)
	}
	if _, ok := opts.BlobStore.(*snapshot.MemoryBlobStore); !ok {
		t.Errorf("default blob store = %T, want memory store", opts.BlobStore)
	}
}

func TestToDBOptionsInvalid(t *testing.T) {
	if _, err := (&EngineConfig{CachePolicy: "random"}).ToDBOptions(); err == nil {
		t.Error("invalid cache policy accepted")
	}
	if _, err := (&EngineConfig{Serializer: "xml"}).ToDBOptions(); err == nil {
		t.Error("invalid serializer accepted")
	}
}

func TestServerConfigString(t *testing.T) {
	conf := ServerConfig{
		Endpoint: "localhost:8080",
		LogLevel: "debug",
		Engine:   EngineConfig{DataDir: "/var/lib/ekv", CodecKey: "secret"},
	}
	out := conf.String()

	for _, want := range []string{"localhost:8080", "/var/lib/ekv", "debug", "unbounded", "(custom)"} {
		if !strings.Contains(out, want) {
			t.Errorf("String() is missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "secret") {
		t.Error("String() leaks the codec key")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]logger.LogLevel{
		"debug": logger.DEBUG,
		"INFO":  logger.INFO,
		"":      logger.INFO,
		"warn":  logger.WARNING,
		"error": logger.ERROR,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("ParseLogLevel(verbose) should fail")
	}
}

func TestLoggerFormat(t *testing.T) {
	var sb strings.Builder
	SetLogOutput(&sb)
	defer SetLogOutput(os.Stderr)

	l := CreateLogger("engine")
	l.Infof("loaded %d keys", 3)
	l.Debugf("hidden")

	out := sb.String()
	if !strings.Contains(out, "INFO  | engine          | loaded 3 keys") {
		t.Errorf("unexpected log line %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug message logged at info level")
	}
}
