package serve

import (
	"context"
	"fmt"

	cmdUtil "github.com/ValentinKolb/eKV/cmd/util"
	"github.com/ValentinKolb/eKV/lib/db/engines/cedar"
	"github.com/ValentinKolb/eKV/rpc/common"
	"github.com/ValentinKolb/eKV/rpc/server"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	log = logger.GetLogger("cli")

	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the eKV server",
		Long:    `Start the eKV HTTP admin server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is EKV_<flag> (e.g. EKV_CACHE_CAPACITY=500)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "cache-capacity"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("Maximum number of decoded values held in the read cache"))

	key = "cache-policy"
	ServeCmd.PersistentFlags().String(key, "fifo", cmdUtil.WrapString("Eviction policy of the read cache (fifo, lru)"))

	key = "log-capacity"
	ServeCmd.PersistentFlags().Int(key, 1000, cmdUtil.WrapString("Number of mutations kept in the write log, older records are dropped"))

	key = "latency-window"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("Number of recent operation latencies used for the statistics"))

	key = "codec-key"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Key of the value codec for encrypted entries. Empty uses the built-in key. This obfuscates values, it is not cryptographically secure"))

	key = "gc-interval"
	ServeCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("Upper bound for the sleep of the expiry collector (0 = engine default)"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("DataDir is the directory used for storing snapshots. Empty keeps snapshots in memory only"))

	key = "blob-name"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Name of the snapshot blob inside the data dir (empty = engine default)"))

	key = "serializer"
	ServeCmd.PersistentFlags().String(key, "binary", cmdUtil.WrapString("Serializer of the snapshot blob (binary, json, gob)"))

	key = "persist-debounce"
	ServeCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("Delay after a mutation before the snapshot is written (0 = engine default)"))

	key = "persist-retries"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("How many times a failed snapshot write is retried (0 = engine default)"))

	key = "batch-rollback"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Undo the applied operations of a batch when one of its operations fails"))

	key = "history-limit"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Maximum number of queries kept in the query history (0 = unbounded)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.BatchRollback = viper.GetBool("batch-rollback")
	serveCmdConfig.HistoryLimit = viper.GetInt("history-limit")

	serveCmdConfig.Engine = common.EngineConfig{
		CacheCapacity:   viper.GetInt("cache-capacity"),
		CachePolicy:     viper.GetString("cache-policy"),
		LogCapacity:     viper.GetInt("log-capacity"),
		LatencyWindow:   viper.GetInt("latency-window"),
		CodecKey:        viper.GetString("codec-key"),
		GCInterval:      viper.GetDuration("gc-interval"),
		DataDir:         viper.GetString("data-dir"),
		BlobName:        viper.GetString("blob-name"),
		Serializer:      viper.GetString("serializer"),
		PersistDebounce: viper.GetDuration("persist-debounce"),
		PersistRetries:  viper.GetInt("persist-retries"),
	}

	if serveCmdConfig.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	if serveCmdConfig.HistoryLimit < 0 {
		return fmt.Errorf("history-limit must not be negative")
	}
	return nil
}

// run starts the eKV server
func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(serveCmdConfig.LogLevel); err != nil {
		return err
	}

	opts, err := serveCmdConfig.Engine.ToDBOptions()
	if err != nil {
		return err
	}

	log.Infof("starting eKV with configuration:\n%s", serveCmdConfig.String())

	database := cedar.NewCedarDB(opts)
	if err := database.Load(context.Background()); err != nil {
		// the engine starts empty, the next snapshot overwrites the unreadable one
		log.Warningf("failed to load snapshot, starting empty: %v", err)
	}

	return server.NewServer(*serveCmdConfig, database).Serve()
}
