// Class commands for the loom CLI.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/loom/pkg/types"
)

var (
	classDefineDescription string

	relClassDirectionality string
	relClassSourceCard     string
	relClassTargetCard     string
	relClassSourceClasses  []string
	relClassTargetClasses  []string

	classUpdateName        string
	classUpdateDescription string

	classRetireCascade bool
)

var classCmd = &cobra.Command{
	Use:   "class",
	Short: "Manage entity and relationship classes",
}

var classDefineEntityCmd = &cobra.Command{
	Use:   "define-entity <name>",
	Short: "Define a new entity class",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "define-entity:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		class, err := store.Classes().DefineEntityClass(scope(), args[0], classDefineDescription)
		if err != nil {
			exitErr("define-entity", err)
		}

		printResult(class, fmt.Sprintf("Defined entity class %s: %s", class.Name, class.ClassID))
		return nil
	},
}

var classDefineRelationshipCmd = &cobra.Command{
	Use:   "define-relationship <name>",
	Short: "Define a new relationship class",
	Long: `Define-relationship creates a class for typed links between entities.

Directionality is directed or bidirectional (default directed). Cardinality
per endpoint is one or many (default many). Endpoint restrictions limit which
entity classes may appear as source or target; unrestricted when omitted.

Example:
  loom class define-relationship assigned-to \
    --source-cardinality many --target-cardinality one \
    --source-class <task-class-id> --target-class <user-class-id>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "define-relationship:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		spec := types.RelationshipClassSpec{
			Name:              args[0],
			Description:       classDefineDescription,
			Directionality:    relClassDirectionality,
			SourceCardinality: relClassSourceCard,
			TargetCardinality: relClassTargetCard,
			SourceClassIDs:    relClassSourceClasses,
			TargetClassIDs:    relClassTargetClasses,
		}

		class, err := store.Classes().DefineRelationshipClass(scope(), spec)
		if err != nil {
			exitErr("define-relationship", err)
		}

		printResult(class, fmt.Sprintf("Defined relationship class %s: %s", class.Name, class.ClassID))
		return nil
	},
}

var classListCmd = &cobra.Command{
	Use:   "list <kind>",
	Short: "List live classes of a kind (entity or relationship)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseClassKind(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, "list:", err)
			os.Exit(exitUserError)
		}

		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "list:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		if kind == types.ClassKindEntity {
			classes, err := store.Classes().ListEntityClasses(scope())
			if err != nil {
				exitErr("list", err)
			}
			if flagJSON {
				printResult(classes, "")
				return nil
			}
			for _, c := range classes {
				fmt.Printf("%s  %s\n", c.ClassID, c.Name)
			}
			return nil
		}

		classes, err := store.Classes().ListRelationshipClasses(scope())
		if err != nil {
			exitErr("list", err)
		}
		if flagJSON {
			printResult(classes, "")
			return nil
		}
		for _, c := range classes {
			fmt.Printf("%s  %-13s  %s\n", c.ClassID, c.Directionality, c.Name)
		}
		return nil
	},
}

var classGetCmd = &cobra.Command{
	Use:   "get <kind> <id>",
	Short: "Get a class by kind and ID",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseClassKind(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, "get:", err)
			os.Exit(exitUserError)
		}

		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "get:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		var class any
		if kind == types.ClassKindEntity {
			class, err = store.Classes().GetEntityClass(scope(), args[1])
		} else {
			class, err = store.Classes().GetRelationshipClass(scope(), args[1])
		}
		if err != nil {
			exitErr("get", err)
		}

		out, err := json.MarshalIndent(class, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "marshal JSON:", err)
			os.Exit(exitSysError)
		}
		fmt.Println(string(out))
		return nil
	},
}

var classUpdateCmd = &cobra.Command{
	Use:   "update <kind> <id>",
	Short: "Update a class's name or description",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseClassKind(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, "update:", err)
			os.Exit(exitUserError)
		}

		patch := types.ClassPatch{}
		if cmd.Flags().Changed("name") {
			patch.Name = &classUpdateName
		}
		if cmd.Flags().Changed("description") {
			patch.Description = &classUpdateDescription
		}
		if patch.Name == nil && patch.Description == nil {
			fmt.Fprintln(os.Stderr, "update: nothing to change (set --name or --description)")
			os.Exit(exitUserError)
		}

		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "update:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		var class any
		if kind == types.ClassKindEntity {
			class, err = store.Classes().UpdateEntityClass(scope(), args[1], patch)
		} else {
			class, err = store.Classes().UpdateRelationshipClass(scope(), args[1], patch)
		}
		if err != nil {
			exitErr("update", err)
		}

		printResult(class, fmt.Sprintf("Updated %s class %s", kind, args[1]))
		return nil
	},
}

var classRetireCmd = &cobra.Command{
	Use:   "retire <kind> <id>",
	Short: "Retire a class",
	Long: `Retire soft-deletes a class and cascades to its attribute assignments.
Fails while live instances of the class exist unless --cascade is set, which
soft-deletes the instances in bounded batches. An interrupted cascade is
resumable: re-run the command to retire the remaining instances.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseClassKind(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, "retire:", err)
			os.Exit(exitUserError)
		}

		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "retire:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		var progress *types.CascadeProgress
		if kind == types.ClassKindEntity {
			progress, err = store.Classes().RetireEntityClass(scope(), args[1], classRetireCascade)
		} else {
			progress, err = store.Classes().RetireRelationshipClass(scope(), args[1], classRetireCascade)
		}
		if err != nil {
			exitErr("retire", err)
		}

		human := fmt.Sprintf("Retired %s class %s (assignments: %d, instances: %d, relationships: %d)",
			kind, args[1], progress.AssignmentsRetired, progress.InstancesRetired, progress.RelationshipsRetired)
		printResult(progress, human)
		return nil
	},
}

func init() {
	classDefineEntityCmd.Flags().StringVar(&classDefineDescription, "description", "", "class description")

	classDefineRelationshipCmd.Flags().StringVar(&classDefineDescription, "description", "", "class description")
	classDefineRelationshipCmd.Flags().StringVar(&relClassDirectionality, "directionality", "", "directed or bidirectional (default directed)")
	classDefineRelationshipCmd.Flags().StringVar(&relClassSourceCard, "source-cardinality", "", "one or many (default many)")
	classDefineRelationshipCmd.Flags().StringVar(&relClassTargetCard, "target-cardinality", "", "one or many (default many)")
	classDefineRelationshipCmd.Flags().StringSliceVar(&relClassSourceClasses, "source-class", nil, "entity class ID permitted as source (repeatable)")
	classDefineRelationshipCmd.Flags().StringSliceVar(&relClassTargetClasses, "target-class", nil, "entity class ID permitted as target (repeatable)")

	classUpdateCmd.Flags().StringVar(&classUpdateName, "name", "", "new class name")
	classUpdateCmd.Flags().StringVar(&classUpdateDescription, "description", "", "new class description")

	classRetireCmd.Flags().BoolVar(&classRetireCascade, "cascade", false, "soft-delete live instances of the class in batches")

	classCmd.AddCommand(classDefineEntityCmd)
	classCmd.AddCommand(classDefineRelationshipCmd)
	classCmd.AddCommand(classListCmd)
	classCmd.AddCommand(classGetCmd)
	classCmd.AddCommand(classUpdateCmd)
	classCmd.AddCommand(classRetireCmd)
}
