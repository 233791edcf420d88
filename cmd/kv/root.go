package kv

import (
	"github.com/ValentinKolb/eKV/cmd/util"
	"github.com/ValentinKolb/eKV/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcClient *client.Client

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform key-value operations against an eKV server",
		PersistentPreRunE: setupKVClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add the connection flags to the KV command
	util.SetupClientFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(queryCmd)
	KeyValueCommands.AddCommand(batchCmd)
	KeyValueCommands.AddCommand(exportCmd)
	KeyValueCommands.AddCommand(importCmd)
	KeyValueCommands.AddCommand(persistCmd)
	KeyValueCommands.AddCommand(statsCmd)
	KeyValueCommands.AddCommand(logCmd)
	KeyValueCommands.AddCommand(clearCmd)

	// Add command specific flags
	setCmd.Flags().Int64("ttl", 0, util.WrapString("Time to live in seconds (0 = no expiry)"))
	setCmd.Flags().Bool("encrypted", false, util.WrapString("Store the value encoded"))
	setCmd.Flags().Bool("compressed", false, util.WrapString("Run-length compress the value before encoding (requires --encrypted)"))
	getCmd.Flags().Bool("decrypted", false, util.WrapString("Read the raw stored value and decode it, bypassing ttl check and cache"))
	exportCmd.Flags().String("format", "structured", util.WrapString("Export format (structured, delimited, plain)"))
	exportCmd.Flags().StringP("output", "o", "", util.WrapString("Write the export to this file instead of stdout"))
	importCmd.Flags().String("format", "structured", util.WrapString("Import format (structured, delimited, plain)"))
}

// setupKVClient initializes the HTTP client
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	rpcClient, err = client.NewClient(*util.GetClientConfig())
	return err
}
