// Package commands defines all Cobra CLI commands for the sortir binary.
package commands

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/54b3r/sortir-go/internal/audit"
	"github.com/54b3r/sortir-go/internal/config"
	"github.com/54b3r/sortir-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFile holds the --env-file flag value.
var envFile string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sortir",
		Short: "sortir, a retrieval-augmented assistant for Paris cultural events",
		Long: `sortir recommends cultural events in Paris. It indexes the city's
open-data event export, retrieves the events closest to a question and asks
a chat model to answer from them only.

The chat model is selected via the MODEL_PROVIDER environment variable
(default: mistral) or a YAML config file (~/.sortir/config.yaml). A .env
file in the working directory is loaded first.
See 'sortir --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env values never override variables already exported.
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.sortir/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before the config")

	root.AddCommand(
		NewBuildCmd(),
		NewAskCmd(),
		NewChatCmd(),
		NewContextsCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
