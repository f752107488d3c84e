// Relationship commands for the loom CLI.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/loom/pkg/types"
)

var (
	relateListDirection string
	relateListClass     string
	relateListCursor    string
	relateListPageSize  int
)

var relateCmd = &cobra.Command{
	Use:   "relate",
	Short: "Manage relationship instances",
}

var relateCreateCmd = &cobra.Command{
	Use:   "create <class-id> <source-id> <target-id>",
	Short: "Create a relationship between two entities",
	Long: `Create links two live entities under a relationship class. Endpoint
classes are checked against the class's restrictions and cardinality-one
endpoints against existing live relationships.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "create:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		rel, err := store.Instances().CreateRelationship(scope(), args[0], args[1], args[2])
		if err != nil {
			exitErr("create", err)
		}

		printResult(rel, fmt.Sprintf("Created relationship: %s", rel.RelationshipID))
		return nil
	},
}

var relateGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a relationship by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "get:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		rel, err := store.Instances().GetRelationship(scope(), args[0])
		if err != nil {
			exitErr("get", err)
		}

		out, err := json.MarshalIndent(rel, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "marshal JSON:", err)
			os.Exit(exitSysError)
		}
		fmt.Println(string(out))
		return nil
	},
}

var relateDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a relationship and its values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "delete:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		if err := store.Instances().DeleteRelationship(scope(), args[0]); err != nil {
			exitErr("delete", err)
		}

		fmt.Printf("Deleted relationship %s\n", args[0])
		return nil
	},
}

var relateListCmd = &cobra.Command{
	Use:   "list <entity-id>",
	Short: "List the live relationships touching an entity",
	Long: `List traverses the live relationships of an entity. Direction filters
by the endpoint the entity occupies (outgoing, incoming, any); bidirectional
classes match either endpoint. Pass --cursor with the cursor printed by a
previous run to resume after the last emitted relationship.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := attachBackend()
		if err != nil {
			fmt.Fprintln(os.Stderr, "list:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		q := types.TraversalQuery{
			EntityID:  args[0],
			Direction: types.Direction(relateListDirection),
			ClassID:   relateListClass,
			Cursor:    relateListCursor,
			PageSize:  relateListPageSize,
		}

		iter, err := store.Instances().ListRelationships(scope(), q)
		if err != nil {
			exitErr("list", err)
		}
		defer iter.Close()

		var rels []*types.Relationship
		for iter.Next() {
			rels = append(rels, iter.Relationship())
		}
		if err := iter.Err(); err != nil {
			exitErr("list", err)
		}

		if flagJSON {
			printResult(rels, "")
			return nil
		}
		for _, r := range rels {
			fmt.Printf("%s  %s -> %s  (class %s)\n", r.RelationshipID, r.SourceID, r.TargetID, r.ClassID)
		}
		if cursor := iter.Cursor(); cursor != "" {
			fmt.Println("cursor:", cursor)
		}
		return nil
	},
}

func init() {
	relateListCmd.Flags().StringVar(&relateListDirection, "direction", "any", "endpoint filter (outgoing, incoming, any)")
	relateListCmd.Flags().StringVar(&relateListClass, "class", "", "restrict to one relationship class")
	relateListCmd.Flags().StringVar(&relateListCursor, "cursor", "", "resume after this cursor")
	relateListCmd.Flags().IntVar(&relateListPageSize, "page-size", 0, "rows fetched per page (backend default when zero)")

	relateCmd.AddCommand(relateCreateCmd)
	relateCmd.AddCommand(relateGetCmd)
	relateCmd.AddCommand(relateDeleteCmd)
	relateCmd.AddCommand(relateListCmd)
}
