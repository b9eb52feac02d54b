package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/sqkv/cmd/kv"
	"github.com/ValentinKolb/sqkv/cmd/serve"
	"github.com/ValentinKolb/sqkv/cmd/util"
	"github.com/ValentinKolb/sqkv/lib/common"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "sqkv",
		Short: "embedded key-value store on SQLite",
		Long: fmt.Sprintf(`sqkv (v%s)

An embedded, namespace-partitioned key-value store written in Go.
Values are encoded by a chain of codecs (string, bytes, json or gob,
optionally compressed with snappy or zstd) and stored in one SQLite
table per namespace.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sqkv",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sqkv v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, common.DefaultLogLevel, util.WrapString("Log level (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
