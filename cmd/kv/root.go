package kv

import (
	"github.com/ValentinKolb/sqkv/cmd/util"
	"github.com/ValentinKolb/sqkv/lib/store/sqlstore"
	"github.com/spf13/cobra"
)

var (
	localStore *sqlstore.Store

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value store operations on a database file",
		PersistentPreRunE:  openStore,
		PersistentPostRunE: closeStore,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add the store flags to the KV command
	util.SetupStoreFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(listNamespacesCmd)
	KeyValueCommands.AddCommand(listKeysCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(renameCmd)
	KeyValueCommands.AddCommand(infoCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// openStore opens the database file configured by flags and environment
func openStore(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	s, err := util.OpenStore(cmd.Context(), util.GetStoreConfig())
	if err != nil {
		return err
	}
	localStore = s
	return nil
}

// closeStore closes the store opened by openStore
func closeStore(_ *cobra.Command, _ []string) error {
	if localStore == nil {
		return nil
	}
	return localStore.Close()
}
