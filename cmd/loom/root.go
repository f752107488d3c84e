// Root command for the loom CLI.
package main

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/loom/internal/paths"
	"github.com/mesh-intelligence/loom/pkg/loom"
)

// Exit codes: user errors (bad input, not found) versus system errors
// (config, storage).
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Global flag values.
var (
	flagConfigDir string
	flagDataDir   string
	flagTenant    string
	flagJSON      bool
)

// Values loaded from config.yaml by PersistentPreRunE so all subcommands
// can use them.
var (
	configDataDir      string
	configCascadeBatch int
	configAuditBrokers []string
	configAuditTopic   string
)

var rootCmd = &cobra.Command{
	Use:     "loom",
	Short:   "Loom is a runtime-extensible data modeling engine",
	Version: loom.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configDir, err := resolveConfigDir()
		if err != nil {
			return err
		}

		cfg, err := loadConfig(configDir)
		if err != nil {
			return err
		}

		configDataDir = cfg.GetString(cfgKeyDataDir)
		configCascadeBatch = cfg.GetInt(cfgKeyCascadeBatchSize)
		configAuditBrokers = cfg.GetStringSlice(cfgKeyAuditBrokers)
		configAuditTopic = cfg.GetString(cfgKeyAuditTopic)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default: $(CWD)/.loom)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default: $(CWD)/.loom-db)")
	rootCmd.PersistentFlags().StringVar(&flagTenant, "tenant", "default", "tenant scope for all operations")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(attributeCmd)
	rootCmd.AddCommand(classCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(unassignCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(entityCmd)
	rootCmd.AddCommand(relateCmd)
	rootCmd.AddCommand(valueCmd)
}

// resolveDataDir returns the data directory path following the precedence:
// --data-dir flag > config.yaml data_dir > LOOM_DATA_DIR env > default $(CWD)/.loom-db.
func resolveDataDir() (string, error) {
	return paths.ResolveDataDir(flagDataDir, configDataDir)
}

// resolveConfigDir returns the configuration directory following the
// precedence: --config-dir flag > LOOM_CONFIG_DIR env > DefaultConfigDir().
func resolveConfigDir() (string, error) {
	return paths.ResolveConfigDir(flagConfigDir)
}
