/*
Copyright © 2026 NAME HERE
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/masnyjimmy/qvalidate/manifest"
	"github.com/masnyjimmy/qvalidate/server"
)

const (
	exitOK = iota
	exitRead
	exitInvalid
	exitCompile
	exitWrite
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a manifest and compile every route schema",
	Long: `check reads a route manifest, validates it against the manifest schema and
compiles the schemas of every route, exactly as serve would.

Exit codes: 1 unreadable file, 2 invalid manifest, 3 schema compile error.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger, err := newLogger(cmd)
		if err != nil {
			cmd.PrintErrln(err)
			os.Exit(exitRead)
		}
		defer logger.Sync()

		input, _ := cmd.Flags().GetString("input")

		if res := CheckFile(logger, input); res != exitOK {
			logger.Sync()
			os.Exit(res)
		}
	},
}

// loadManifest reads and builds input, returning the exit code of the first failing step.
func loadManifest(logger *zap.Logger, input string) (*manifest.Manifest, *server.Instance, int) {
	logger.Info("Reading manifest", zap.String("file", input))

	bytes, err := os.ReadFile(input)
	if err != nil {
		logger.Error("Unable to read file", zap.String("file", input), zap.Error(err))
		return nil, nil, exitRead
	}

	m, err := manifest.Parse(bytes, manifest.FormatOf(input))
	if err != nil {
		logger.Error("Invalid manifest", zap.Error(err))
		return nil, nil, exitInvalid
	}

	logger.Info("Compiling route schemas", zap.Int("routes", len(m.Routes)))

	instance, err := server.Build(m, server.Options{Logger: logger})
	if err != nil {
		logger.Error("Unable to compile schemas", zap.Error(err))
		return nil, nil, exitCompile
	}

	return m, instance, exitOK
}

func CheckFile(logger *zap.Logger, input string) int {
	m, _, res := loadManifest(logger, input)
	if res != exitOK {
		return res
	}

	logger.Info("Manifest is valid", zap.Int("routes", len(m.Routes)))
	return exitOK
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringP("input", "i", "routes.yaml", "Route manifest (yaml, json or toml)")
	checkCmd.MarkFlagFilename("input", "yaml", "yml", "json", "toml")
}
