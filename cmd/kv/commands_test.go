package kv

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/ValentinKolb/eKV/lib/db/engines/cedar"
	"github.com/ValentinKolb/eKV/rpc/common"
	"github.com/ValentinKolb/eKV/rpc/server"
	"github.com/spf13/viper"
)

func newTestDB(t *testing.T) (string, db.KVDB) {
	t.Helper()
	opts := cedar.DefaultOptions()
	opts.PersistDebounce = time.Hour
	database := cedar.NewCedarDB(opts)

	ts := httptest.NewServer(server.NewServer(common.ServerConfig{}, database).Handler())
	t.Cleanup(func() {
		ts.Close()
		database.Close()
		viper.Reset()
	})
	return ts.URL, database
}

func execute(t *testing.T, endpoint string, args ...string) error {
	t.Helper()
	KeyValueCommands.SetArgs(append(args, "--endpoints", endpoint))
	return KeyValueCommands.Execute()
}

func TestCommands(t *testing.T) {
	endpoint, database := newTestDB(t)

	if err := execute(t, endpoint, "set", "greeting", "hello", "--ttl", "60", "--encrypted"); err != nil {
		t.Fatal(err)
	}
	entry, ok := database.Lookup("greeting")
	if !ok || !entry.Encrypted || entry.ExpiresAt.IsZero() {
		t.Fatalf("entry after set = %+v, %v", entry, ok)
	}

	for _, args := range [][]string{
		{"get", "greeting"},
		{"get", "greeting", "--decrypted"},
		{"get", "missing"},
		{"has", "greeting"},
		{"query", "prefix", "gr"},
		{"stats"},
		{"log"},
		{"persist"},
	} {
		if err := execute(t, endpoint, args...); err != nil {
			t.Errorf("%v: %v", args, err)
		}
	}

	if err := execute(t, endpoint, "del", "greeting"); err != nil {
		t.Fatal(err)
	}
	if database.Exists("greeting") {
		t.Error("del did not remove the key")
	}
}

func TestBatchExportImport(t *testing.T) {
	endpoint, database := newTestDB(t)
	dir := t.TempDir()

	batchFile := filepath.Join(dir, "batch.json")
	ops := `[{"op":"PUT","key":"a","value":"1"},{"op":"PUT","key":"b","value":"2","ttl":60}]`
	if err := os.WriteFile(batchFile, []byte(ops), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := execute(t, endpoint, "batch", batchFile); err != nil {
		t.Fatal(err)
	}
	if database.Len() != 2 {
		t.Fatalf("Len after batch = %d, want 2", database.Len())
	}

	exportFile := filepath.Join(dir, "export.csv")
	if err := execute(t, endpoint, "export", "--format", "delimited", "-o", exportFile); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(exportFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"a","1"`) {
		t.Errorf("export file = %s", data)
	}

	if err := execute(t, endpoint, "clear"); err != nil {
		t.Fatal(err)
	}
	if err := execute(t, endpoint, "import", exportFile, "--format", "delimited"); err != nil {
		t.Fatal(err)
	}
	if v, ok := database.Get("a"); !ok || string(v) != "1" {
		t.Errorf("a after import = %q, %v", v, ok)
	}

	failing := filepath.Join(dir, "failing.json")
	if err := os.WriteFile(failing, []byte(`[{"op":"PUT","key":""}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := execute(t, endpoint, "batch", failing); err == nil {
		t.Error("failed batch did not return an error")
	}
}
