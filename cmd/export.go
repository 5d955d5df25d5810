/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/masnyjimmy/qvalidate/openapi"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the OpenAPI 3.1 document of a manifest",
	Long: `export builds the OpenAPI 3.1 document of the routes in a manifest. The
output format follows the extension of the output file: .json writes JSON,
anything else YAML.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger, err := newLogger(cmd)
		if err != nil {
			cmd.PrintErrln(err)
			os.Exit(exitRead)
		}
		defer logger.Sync()

		output, _ := cmd.Flags().GetString("output")
		input, _ := cmd.Flags().GetString("input")

		if res := ExportFile(logger, output, input); res != exitOK {
			logger.Sync()
			os.Exit(res)
		}
	},
}

func ExportFile(logger *zap.Logger, output, input string) int {
	m, instance, res := loadManifest(logger, input)
	if res != exitOK {
		return res
	}

	info := openapi.Info{
		Title:       m.Info.Title,
		Version:     m.Info.Version,
		Description: m.Info.Description,
	}

	ext := filepath.Ext(output)

	var (
		bytes []byte
		err   error
	)

	switch ext {
	case ".json":
		logger.Debug("Type selected: json")
		bytes = instance.Document
	case ".yaml", ".yml":
		logger.Debug("Type selected: yaml")
		bytes, err = openapi.BuildYAML(info, instance.App.Routes())
	default:
		logger.Debug("Unknown file extension, selecting yaml", zap.String("ext", ext))
		bytes, err = openapi.BuildYAML(info, instance.App.Routes())
	}

	if err != nil {
		logger.Error("Unable to build document", zap.Error(err))
		return exitCompile
	}

	logger.Info("Writing document", zap.String("file", output))

	if err := os.WriteFile(output, bytes, 0644); err != nil {
		logger.Error("Unable to write file", zap.String("file", output), zap.Error(err))
		return exitWrite
	}

	logger.Info("Finished successfully")
	return exitOK
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("input", "i", "routes.yaml", "Route manifest (yaml, json or toml)")
	exportCmd.Flags().StringP("output", "o", "openapi.yaml", "Output filepath")
	exportCmd.MarkFlagRequired("output")
	exportCmd.MarkFlagFilename("output", "yaml", "json")
}
