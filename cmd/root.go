/*
Copyright © 2026 NAME HERE
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/masnyjimmy/qvalidate/logging"
)

var rootCmd = &cobra.Command{
	Use:   "qvalidate",
	Short: "Validate HTTP traffic against the JSON Schemas of a route manifest",
	Long: `qvalidate serves the routes declared in a manifest (YAML, JSON or TOML) and
validates path params, query, body and reply of every request against the
schemas declared on each route.

  qvalidate check -i routes.yaml
  qvalidate serve -i routes.yaml --watch
  qvalidate export -i routes.yaml -o openapi.json`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "console", "Log format: console, json")
}

func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")

	logger, err := logging.New(logging.Config{
		Level:       level,
		Format:      format,
		ServiceName: rootCmd.Name(),
	})
	if err != nil {
		return nil, fmt.Errorf("Unable to create logger: %w", err)
	}
	return logger, nil
}
