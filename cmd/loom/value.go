// Value commands for the loom CLI.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var valueKind string

var valueCmd = &cobra.Command{
	Use:   "value",
	Short: "Read and write attribute values on instances",
}

var valueSetCmd = &cobra.Command{
	Use:   "set <instance-id> <attribute-id> <payload>",
	Short: "Set an attribute value on an instance",
	Long: `Set writes a value for an (instance, attribute) pair. The payload is
parsed as JSON when possible, otherwise taken as a plain string. The write is
validated against the instance's effective schema and the attribute's rules,
and appends a new version; prior versions are retained.

Example:
  loom value set <task-id> <priority-attr-id> 3`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseInstanceKind(valueKind)
		if err != nil {
			fmt.Fprintln(os.Stderr, "set:", err)
			os.Exit(exitUserError)
		}

		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "set:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		val, err := store.Values().Upsert(scope(), args[0], kind, args[1], parsePayload(args[2]))
		if err != nil {
			exitErr("set", err)
		}

		printResult(val, fmt.Sprintf("Set value (version %d)", val.Version))
		return nil
	},
}

var valueGetCmd = &cobra.Command{
	Use:   "get <instance-id> <attribute-id>",
	Short: "Get the latest value of an attribute on an instance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "get:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		val, err := store.Values().Read(scope(), args[0], args[1])
		if err != nil {
			exitErr("get", err)
		}

		if flagJSON {
			printResult(val, "")
			return nil
		}
		out, err := json.Marshal(val.Payload)
		if err != nil {
			fmt.Fprintln(os.Stderr, "marshal JSON:", err)
			os.Exit(exitSysError)
		}
		fmt.Println(string(out))
		return nil
	},
}

var valueListCmd = &cobra.Command{
	Use:   "list <instance-id>",
	Short: "List the current values of an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "list:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		values, err := store.Values().BulkRead(scope(), args[0])
		if err != nil {
			exitErr("list", err)
		}

		out, err := json.MarshalIndent(values, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "marshal JSON:", err)
			os.Exit(exitSysError)
		}
		fmt.Println(string(out))
		return nil
	},
}

var valueHistoryCmd = &cobra.Command{
	Use:   "history <instance-id> <attribute-id>",
	Short: "List every retained version of a value, oldest first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "history:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		versions, err := store.Values().History(scope(), args[0], args[1])
		if err != nil {
			exitErr("history", err)
		}

		if flagJSON {
			printResult(versions, "")
			return nil
		}
		for _, v := range versions {
			payload, err := json.Marshal(v.Payload)
			if err != nil {
				fmt.Fprintln(os.Stderr, "marshal JSON:", err)
				os.Exit(exitSysError)
			}
			deleted := ""
			if v.DeletedAt != nil {
				deleted = "  (deleted)"
			}
			fmt.Printf("v%d  %s%s\n", v.Version, payload, deleted)
		}
		return nil
	},
}

var valueFinalizeCmd = &cobra.Command{
	Use:   "finalize <instance-id>",
	Short: "Verify an instance carries all required attribute values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseInstanceKind(valueKind)
		if err != nil {
			fmt.Fprintln(os.Stderr, "finalize:", err)
			os.Exit(exitUserError)
		}

		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "finalize:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		if err := store.Values().Finalize(scope(), args[0], kind); err != nil {
			exitErr("finalize", err)
		}

		fmt.Printf("Instance %s satisfies its required attributes\n", args[0])
		return nil
	},
}

func init() {
	valueSetCmd.Flags().StringVar(&valueKind, "kind", "entity", "instance kind (entity or relationship)")
	valueFinalizeCmd.Flags().StringVar(&valueKind, "kind", "entity", "instance kind (entity or relationship)")

	valueCmd.AddCommand(valueSetCmd)
	valueCmd.AddCommand(valueGetCmd)
	valueCmd.AddCommand(valueListCmd)
	valueCmd.AddCommand(valueHistoryCmd)
	valueCmd.AddCommand(valueFinalizeCmd)
}
