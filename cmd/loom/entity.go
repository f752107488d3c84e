// Entity commands for the loom CLI.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var entityCmd = &cobra.Command{
	Use:   "entity",
	Short: "Manage entity instances",
}

var entityCreateCmd = &cobra.Command{
	Use:   "create <class-id>",
	Short: "Create an entity instance of a class",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "create:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		entity, err := store.Instances().CreateEntity(scope(), args[0])
		if err != nil {
			exitErr("create", err)
		}

		printResult(entity, fmt.Sprintf("Created entity: %s", entity.EntityID))
		return nil
	},
}

var entityGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get an entity by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "get:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		entity, err := store.Instances().GetEntity(scope(), args[0])
		if err != nil {
			exitErr("get", err)
		}

		out, err := json.MarshalIndent(entity, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "marshal JSON:", err)
			os.Exit(exitSysError)
		}
		fmt.Println(string(out))
		return nil
	},
}

var entityDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an entity",
	Long: `Delete soft-deletes an entity together with its values and every live
relationship where it is source or target, in one transaction.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "delete:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		if err := store.Instances().DeleteEntity(scope(), args[0]); err != nil {
			exitErr("delete", err)
		}

		fmt.Printf("Deleted entity %s\n", args[0])
		return nil
	},
}

func init() {
	entityCmd.AddCommand(entityCreateCmd)
	entityCmd.AddCommand(entityGetCmd)
	entityCmd.AddCommand(entityDeleteCmd)
}
