package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ValentinKolb/eKV/lib/batch"
	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/ValentinKolb/eKV/lib/query"
	"github.com/ValentinKolb/eKV/rpc/client"
	"github.com/spf13/cobra"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, _ := cmd.Flags().GetInt64("ttl")
			encrypted, _ := cmd.Flags().GetBool("encrypted")
			compressed, _ := cmd.Flags().GetBool("compressed")

			opts := db.Options{
				TTL:        time.Duration(ttl) * time.Second,
				Encrypted:  encrypted,
				Compressed: compressed,
			}
			if err := rpcClient.Put(cmd.Context(), args[0], []byte(args[1]), opts); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decrypted, _ := cmd.Flags().GetBool("decrypted")
			key := args[0]

			value, err := rpcClient.Get(cmd.Context(), key, decrypted)
			switch {
			case errors.Is(err, client.ErrNotFound):
				fmt.Printf("key=%s, found=false\n", key)
				return nil
			case err != nil:
				return err
			}
			fmt.Printf("key=%s, found=true, value=%s\n", key, value)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			existed, err := rpcClient.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, deleted=%t\n", args[0], existed)
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := rpcClient.Exists(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%t\n", args[0], found)
			return nil
		},
	}
	queryCmd = &cobra.Command{
		Use:   "query [kind] [pattern]",
		Short: "Runs a query (prefix, regex, range 'start,end', size 'limit')",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pattern string
			if len(args) == 2 {
				pattern = args[1]
			}
			results, err := rpcClient.Query(cmd.Context(), query.Kind(args[0]), pattern)
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Printf("%s\t%d\n", r.Key, r.Size)
			}
			return nil
		},
	}
	batchCmd = &cobra.Command{
		Use:   "batch [file|-]",
		Short: "Executes a JSON array of operations read from a file or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			var ops []batch.Operation
			if err := json.Unmarshal(data, &ops); err != nil {
				return fmt.Errorf("invalid batch file: %w", err)
			}

			resp, err := rpcClient.Batch(cmd.Context(), ops)
			if err != nil {
				return err
			}
			if err := printJSON(resp); err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("batch failed: %s", resp.Error)
			}
			return nil
		},
	}
	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Exports all values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")

			data, err := rpcClient.Export(cmd.Context(), format)
			if err != nil {
				return err
			}
			if output == "" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("exported %d bytes to %s\n", len(data), output)
			return nil
		},
	}
	importCmd = &cobra.Command{
		Use:   "import [file|-]",
		Short: "Imports values from a file or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")

			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			result, err := rpcClient.Import(cmd.Context(), data, format)
			if err != nil {
				return err
			}
			fmt.Printf("imported %d of %d records\n", result.Applied, result.Attempted)
			return nil
		},
	}
	persistCmd = &cobra.Command{
		Use:   "persist",
		Short: "Writes a snapshot of the server state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.Persist(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("persisted successfully")
			return nil
		},
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Prints the statistics of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := rpcClient.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
	logCmd = &cobra.Command{
		Use:   "log",
		Short: "Prints the write log of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := rpcClient.Log(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Printf("%s %-6s %s=%s\n", r.Timestamp.Format(time.RFC3339Nano), r.Op, r.Key, r.Value)
			}
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Removes all keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("cleared successfully")
			return nil
		},
	}
)

// readInput reads a file, "-" reads stdin
func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
