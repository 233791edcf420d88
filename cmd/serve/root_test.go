package serve

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestProcessConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := ServeCmd.ParseFlags([]string{
		"--cache-policy=lru",
		"--cache-capacity=5",
		"--persist-debounce=2s",
		"--batch-rollback",
		"--history-limit=20",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := processConfig(ServeCmd, nil); err != nil {
		t.Fatal(err)
	}

	if serveCmdConfig.Endpoint != "0.0.0.0:8080" || serveCmdConfig.LogLevel != "info" {
		t.Errorf("defaults not applied: %+v", serveCmdConfig)
	}
	if !serveCmdConfig.BatchRollback || serveCmdConfig.HistoryLimit != 20 {
		t.Errorf("server flags = %+v", serveCmdConfig)
	}

	engine := serveCmdConfig.Engine
	if engine.CachePolicy != "lru" || engine.CacheCapacity != 5 || engine.PersistDebounce != 2*time.Second {
		t.Errorf("engine config = %+v", engine)
	}

	opts, err := engine.ToDBOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.CacheCapacity != 5 || opts.PersistDebounce != 2*time.Second {
		t.Errorf("db options = %+v", opts)
	}
}
