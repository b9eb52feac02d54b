package kv

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/sqkv/cmd/util"
	"github.com/ValentinKolb/sqkv/lib/common"
	"github.com/ValentinKolb/sqkv/lib/store"
	"github.com/spf13/cobra"
)

var (
	listNamespacesCmd = &cobra.Command{
		Use:   "list-namespaces",
		Short: "List all namespaces in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			namespaces, err := localStore.ListNamespaces(cmd.Context())
			if err != nil {
				return err
			}
			for _, ns := range namespaces {
				fmt.Println(ns)
			}
			return nil
		},
	}
	listKeysCmd = &cobra.Command{
		Use:   "list-keys",
		Short: "List the keys of a namespace or of all namespaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, _ := cmd.Flags().GetString("namespace")
			like, _ := cmd.Flags().GetString("like")

			namespaces := []string{ns}
			if ns == "" {
				var err error
				if namespaces, err = localStore.ListNamespaces(cmd.Context()); err != nil {
					return err
				}
			}

			for _, n := range namespaces {
				keys, err := listKeys(cmd, n, like)
				if err != nil {
					return err
				}
				for _, key := range keys {
					if ns != "" {
						fmt.Println(key)
					} else {
						fmt.Printf("%s\t%s\n", n, key)
					}
				}
			}
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get",
		Short: "Get one value or all values of a namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, _ := cmd.Flags().GetString("namespace")
			key, _ := cmd.Flags().GetString("key")

			if key != "" {
				value, loaded, err := localStore.Get(cmd.Context(), ns, key)
				if err != nil {
					return err
				}
				if !loaded {
					return common.Errorf(common.RetCNotFound, "key '%s' not found in namespace '%s'", key, ns)
				}
				return util.WriteValue(os.Stdout, value)
			}

			keys, err := localStore.ListKeys(cmd.Context(), ns)
			if err != nil {
				return err
			}
			values, err := localStore.GetMany(cmd.Context(), ns, keys)
			if err != nil {
				return err
			}
			for _, k := range keys {
				value, ok := values[k]
				if !ok {
					continue
				}
				fmt.Printf("%s\t", k)
				if err := util.WriteValue(os.Stdout, value); err != nil {
					return err
				}
			}
			return nil
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [namespace] [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			value, err := util.ParseValue(args[2], asJSON)
			if err != nil {
				return err
			}
			if err := localStore.SetE(cmd.Context(), args[0], args[1], value, ttl); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [namespace] [key...]",
		Short: "Deletes one or more keys",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := localStore.DeleteMany(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d key(s)\n", n)
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [namespace] [key]",
		Short: "Checks whether a key exists",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := localStore.Has(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if found {
				fmt.Println("key exists")
			} else {
				fmt.Println("key does not exist")
			}
			return nil
		},
	}
	renameCmd = &cobra.Command{
		Use:   "rename [namespace] [old] [new] [old new...]",
		Short: "Renames one or more keys in a single transaction",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 3 || len(args)%2 != 1 {
				return fmt.Errorf("expected a namespace followed by pairs of old and new keys")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			overwrite, _ := cmd.Flags().GetBool("overwrite")
			allowMissing, _ := cmd.Flags().GetBool("allow-missing")

			renames := make(map[string]string, len(args)/2)
			for i := 1; i < len(args); i += 2 {
				if _, dup := renames[args[i]]; dup {
					return fmt.Errorf("key '%s' is renamed twice", args[i])
				}
				renames[args[i]] = args[i+1]
			}

			n, err := localStore.Rename(cmd.Context(), args[0], renames, store.RenameOptions{
				Overwrite:    overwrite,
				AllowMissing: allowMissing,
			})
			if err != nil {
				return err
			}
			fmt.Printf("renamed %d key(s)\n", n)
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints statistics about the database as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := localStore.Info(cmd.Context())
			if err != nil {
				return err
			}
			return util.WriteJSON(os.Stdout, info)
		},
	}
)

func init() {
	listKeysCmd.Flags().StringP("namespace", "n", "", util.WrapString("Namespace to list keys from (if not specified, lists keys from all namespaces)"))
	listKeysCmd.Flags().String("like", "", util.WrapString("Only list keys matching this SQL LIKE pattern (e.g. user:%)"))

	getCmd.Flags().StringP("namespace", "n", "", util.WrapString("Namespace to get values from"))
	getCmd.Flags().StringP("key", "k", "", util.WrapString("Key to get (if not specified, gets all keys in the namespace)"))
	_ = getCmd.MarkFlagRequired("namespace")

	setCmd.Flags().Duration("ttl", 0, util.WrapString("Record an expiry time (e.g. 10m). Only honored by readers with --enforce-expiry"))
	setCmd.Flags().Bool("json", false, util.WrapString("Parse the value as JSON instead of storing it as string"))

	renameCmd.Flags().Bool("overwrite", false, util.WrapString("Replace existing target keys"))
	renameCmd.Flags().Bool("allow-missing", false, util.WrapString("Skip source keys that do not exist"))
}

// listKeys lists all keys of ns or only those matching like
func listKeys(cmd *cobra.Command, ns, like string) ([]string, error) {
	if like == "" {
		return localStore.ListKeys(cmd.Context(), ns)
	}
	return localStore.ListKeysLike(cmd.Context(), ns, like)
}
