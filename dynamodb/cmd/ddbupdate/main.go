// ddbupdate renders and applies DynamoDB updates described in YAML files.
//
// # Installation
//
//	go install github.com/acksell/ddbupdate/dynamodb/cmd/ddbupdate@latest
//
// # Commands
//
//	ddbupdate render   Print the UpdateExpression and placeholder maps
//	ddbupdate apply    Send the update to DynamoDB or a local store
//	ddbupdate version  Print the version
//
// Defaults for region, profile, endpoint and log level are read from
// ddbupdate.yaml in the working directory or any parent directory.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const version = "0.1.0"

// app is shared by all commands and set up before any of them runs.
type app struct {
	cfg      Config
	log      *zap.Logger
	logLevel string
}

func main() {
	cmd := rootCmd(&app{})
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ddbupdate",
		Short:        "ddbupdate renders and applies conflict-free DynamoDB updates",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(".")
			if err != nil {
				return err
			}
			a.cfg = cfg
			level := a.logLevel
			if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
				level = cfg.LogLevel
			}
			a.log, err = newLogger(level)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	cmd.AddCommand(renderCmd(a), applyCmd(a), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the ddbupdate version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ddbupdate version %s\n", version)
		},
	}
}

// newLogger returns a structured json logger writing to stderr.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}
