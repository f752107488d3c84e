// Attribute commands for the loom CLI.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/loom/pkg/types"
)

var (
	attrDefineType  string
	attrDefineRules string

	attrUpdateName  string
	attrUpdateRules string
	attrUpdateForce bool

	attrRetireCascade bool
)

var attributeCmd = &cobra.Command{
	Use:   "attribute",
	Short: "Manage attribute definitions",
}

var attrDefineCmd = &cobra.Command{
	Use:   "define <name>",
	Short: "Define a new attribute",
	Long: `Define creates a reusable attribute definition in the tenant scope.

Data types: text, integer, float, boolean, timestamp, json.
Rules are a JSON object, e.g. '{"min": 1, "max": 5}' or '{"enum": ["a","b"]}'.

Example:
  loom attribute define priority --type integer --rules '{"min": 1, "max": 5}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := parseRules(attrDefineRules)
		if err != nil {
			fmt.Fprintln(os.Stderr, "define:", err)
			os.Exit(exitUserError)
		}

		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "define:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		attr, err := store.Attributes().Define(scope(), args[0], attrDefineType, rules)
		if err != nil {
			exitErr("define", err)
		}

		printResult(attr, fmt.Sprintf("Defined attribute %s: %s", attr.Name, attr.AttributeID))
		return nil
	},
}

var attrGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get an attribute by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "get:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		attr, err := store.Attributes().Get(scope(), args[0])
		if err != nil {
			exitErr("get", err)
		}

		out, err := json.MarshalIndent(attr, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "marshal JSON:", err)
			os.Exit(exitSysError)
		}
		fmt.Println(string(out))
		return nil
	},
}

var attrListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live attributes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "list:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		attrs, err := store.Attributes().List(scope())
		if err != nil {
			exitErr("list", err)
		}

		if flagJSON {
			printResult(attrs, "")
			return nil
		}
		for _, a := range attrs {
			fmt.Printf("%s  %-10s  %s\n", a.AttributeID, a.DataType, a.Name)
		}
		return nil
	},
}

var attrUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update an attribute's name or rules",
	Long: `Update renames an attribute or replaces its rule set. A rule change is
re-validated against every live value of the attribute; a tightening that
would leave values outside the new rules fails unless --force is set, in
which case those values are flagged nonconforming and retained.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch := types.AttributePatch{Force: attrUpdateForce}
		if attrUpdateName != "" {
			patch.Name = &attrUpdateName
		}
		if attrUpdateRules != "" {
			rules, err := parseRules(attrUpdateRules)
			if err != nil {
				fmt.Fprintln(os.Stderr, "update:", err)
				os.Exit(exitUserError)
			}
			patch.Rules = &rules
		}
		if patch.Name == nil && patch.Rules == nil {
			fmt.Fprintln(os.Stderr, "update: nothing to change (set --name or --rules)")
			os.Exit(exitUserError)
		}

		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "update:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		attr, err := store.Attributes().Update(scope(), args[0], patch)
		if err != nil {
			exitErr("update", err)
		}

		printResult(attr, fmt.Sprintf("Updated attribute %s (version %d)", attr.AttributeID, attr.Version))
		return nil
	},
}

var attrRetireCmd = &cobra.Command{
	Use:   "retire <id>",
	Short: "Retire an attribute",
	Long: `Retire soft-deletes an attribute. Fails while live assignments
reference it unless --cascade is set, which retires those assignments too.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "retire:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		if err := store.Attributes().Retire(scope(), args[0], attrRetireCascade); err != nil {
			exitErr("retire", err)
		}

		fmt.Printf("Retired attribute %s\n", args[0])
		return nil
	},
}

func init() {
	attrDefineCmd.Flags().StringVar(&attrDefineType, "type", "", "data type (text, integer, float, boolean, timestamp, json)")
	attrDefineCmd.Flags().StringVar(&attrDefineRules, "rules", "", "validation rules as JSON")
	attrDefineCmd.MarkFlagRequired("type")

	attrUpdateCmd.Flags().StringVar(&attrUpdateName, "name", "", "new attribute name")
	attrUpdateCmd.Flags().StringVar(&attrUpdateRules, "rules", "", "replacement rules as JSON")
	attrUpdateCmd.Flags().BoolVar(&attrUpdateForce, "force", false, "flag nonconforming values instead of failing")

	attrRetireCmd.Flags().BoolVar(&attrRetireCascade, "cascade", false, "retire live assignments of the attribute too")

	attributeCmd.AddCommand(attrDefineCmd)
	attributeCmd.AddCommand(attrGetCmd)
	attributeCmd.AddCommand(attrListCmd)
	attributeCmd.AddCommand(attrUpdateCmd)
	attributeCmd.AddCommand(attrRetireCmd)
}
