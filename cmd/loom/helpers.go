// Shared helpers for loom CLI commands.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/loom/internal/audit"
	"github.com/mesh-intelligence/loom/pkg/sqlite"
	"github.com/mesh-intelligence/loom/pkg/types"
)

// attachBackend resolves the data directory, creates a SQLite backend with
// the configured logger and audit sink, and attaches it. The caller must
// defer store.Detach().
func attachBackend() (types.Store, error) {
	dataDir, err := resolveDataDir()
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	opts := []sqlite.Option{sqlite.WithLogger(logger)}

	if len(configAuditBrokers) > 0 {
		sink, err := audit.NewKafkaSink(audit.KafkaSinkParams{
			Brokers: configAuditBrokers,
			Topic:   configAuditTopic,
		})
		if err != nil {
			return nil, fmt.Errorf("init audit sink: %w", err)
		}
		opts = append(opts, sqlite.WithAuditSink(sink))
	}

	cfg := types.Config{
		Backend:          types.BackendSQLite,
		DataDir:          dataDir,
		CascadeBatchSize: configCascadeBatch,
	}

	store := sqlite.NewBackend(opts...)
	if err := store.Attach(cfg); err != nil {
		return nil, fmt.Errorf("attach backend: %w", err)
	}

	return store, nil
}

// scope returns the tenant scope from the --tenant flag.
func scope() types.Scope {
	return types.Scope(flagTenant)
}

// printResult renders a command result: indented JSON when --json is set,
// otherwise the provided human-readable line.
func printResult(result any, human string) {
	if flagJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "marshal JSON:", err)
			os.Exit(exitSysError)
		}
		fmt.Println(string(out))
		return
	}
	fmt.Println(human)
}

// exitErr prints the error and exits with the code that matches its kind:
// user errors for validation, conflicts, and lookups; system errors for
// everything else.
func exitErr(prefix string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, err)
	switch {
	case errors.Is(err, types.ErrValidation),
		errors.Is(err, types.ErrConflict),
		errors.Is(err, types.ErrNotFound),
		errors.Is(err, types.ErrInUse),
		errors.Is(err, types.ErrSchemaViolation),
		errors.Is(err, types.ErrCardinalityViolation),
		errors.Is(err, types.ErrClassMismatch),
		errors.Is(err, types.ErrConstraintViolation):
		os.Exit(exitUserError)
	default:
		os.Exit(exitSysError)
	}
}

// parseRules decodes a JSON rule set from a --rules flag value. An empty
// string yields an empty rule set.
func parseRules(raw string) (types.RuleSet, error) {
	var rules types.RuleSet
	if raw == "" {
		return rules, nil
	}
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return rules, fmt.Errorf("invalid rules JSON: %w", err)
	}
	return rules, nil
}

// parsePayload decodes a value payload from the command line. JSON wins;
// anything that does not parse is taken as a plain string.
func parsePayload(raw string) any {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return raw
	}
	return parsed
}

// parseClassKind validates a --kind flag value.
func parseClassKind(raw string) (types.ClassKind, error) {
	switch types.ClassKind(raw) {
	case types.ClassKindEntity, types.ClassKindRelationship:
		return types.ClassKind(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown class kind %q (valid: entity, relationship)", types.ErrValidation, raw)
	}
}

// parseInstanceKind validates a --kind flag value for instance-addressed
// commands.
func parseInstanceKind(raw string) (types.InstanceKind, error) {
	switch types.InstanceKind(raw) {
	case types.InstanceKindEntity, types.InstanceKindRelationship:
		return types.InstanceKind(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown instance kind %q (valid: entity, relationship)", types.ErrValidation, raw)
	}
}
