// Assignment commands for the loom CLI: assign, unassign, schema.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	assignKind     string
	assignRequired bool

	schemaKind string
)

var assignCmd = &cobra.Command{
	Use:   "assign <attribute-id> <class-id>",
	Short: "Assign an attribute to a class",
	Long: `Assign binds an attribute to an entity or relationship class. The
attribute becomes part of the class's effective schema and its instances can
carry values for it. Required attributes are enforced when an instance is
finalized.

Example:
  loom assign <attr-id> <class-id> --kind entity --required`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseClassKind(assignKind)
		if err != nil {
			fmt.Fprintln(os.Stderr, "assign:", err)
			os.Exit(exitUserError)
		}

		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "assign:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		asn, err := store.Assignments().Assign(scope(), args[0], args[1], kind, assignRequired)
		if err != nil {
			exitErr("assign", err)
		}

		printResult(asn, fmt.Sprintf("Assigned attribute %s to %s class %s: %s",
			args[0], kind, args[1], asn.AssignmentID))
		return nil
	},
}

var unassignCmd = &cobra.Command{
	Use:   "unassign <assignment-id>",
	Short: "Remove an attribute assignment",
	Long: `Unassign soft-removes an assignment. Existing values of the attribute
on instances of the class are flagged, retained for audit, and still readable;
new writes for the attribute are rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "unassign:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		if err := store.Assignments().Unassign(scope(), args[0]); err != nil {
			exitErr("unassign", err)
		}

		fmt.Printf("Unassigned %s\n", args[0])
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema <class-id>",
	Short: "Resolve the effective schema of a class",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseClassKind(schemaKind)
		if err != nil {
			fmt.Fprintln(os.Stderr, "schema:", err)
			os.Exit(exitUserError)
		}

		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "schema:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		schema, err := store.Assignments().Resolve(scope(), args[0], kind)
		if err != nil {
			exitErr("schema", err)
		}

		if flagJSON {
			printResult(schema, "")
			return nil
		}
		for _, entry := range schema.Entries {
			req := ""
			if entry.Required {
				req = "  required"
			}
			fmt.Printf("%s  %-10s  %s%s\n", entry.Attribute.AttributeID, entry.Attribute.DataType, entry.Attribute.Name, req)
		}
		return nil
	},
}

func init() {
	assignCmd.Flags().StringVar(&assignKind, "kind", "entity", "class kind (entity or relationship)")
	assignCmd.Flags().BoolVar(&assignRequired, "required", false, "require a value at finalization")

	schemaCmd.Flags().StringVar(&schemaKind, "kind", "entity", "class kind (entity or relationship)")
}
