/*
Copyright © 2026 NAME HERE
*/
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/masnyjimmy/qvalidate/schema"
	"github.com/masnyjimmy/qvalidate/server"
	"github.com/masnyjimmy/qvalidate/watch"
)

// ==================== Cobra Command ====================

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the routes of a manifest with schema validation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger, err := newLogger(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()

		input, _ := cmd.Flags().GetString("input")
		addr, _ := cmd.Flags().GetString("addr")
		watchFile, _ := cmd.Flags().GetBool("watch")

		explicit, err := validatorFlags(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return Serve(ctx, logger, input, addr, watchFile, explicit)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("input", "i", "routes.yaml", "Route manifest (yaml, json or toml)")
	serveCmd.Flags().StringP("addr", "a", ":8080", "Listen address")
	serveCmd.Flags().Bool("watch", false, "Reload the manifest when it changes")

	serveCmd.Flags().String("coerce-types", "", "Override coerceTypes: true, false or array")
	serveCmd.Flags().Bool("all-errors", true, "Override allErrors")
	serveCmd.Flags().Bool("remove-additional", true, "Override removeAdditional")
	serveCmd.Flags().Bool("use-defaults", false, "Override useDefaults")

	serveCmd.MarkFlagFilename("input", "yaml", "yml", "json", "toml")
}

// validatorFlags builds the explicit options layer. Only flags set on the command
// line are included, so the manifest's validator section still applies otherwise.
func validatorFlags(cmd *cobra.Command) (schema.Options, error) {
	var out schema.Options
	flags := cmd.Flags()

	if flags.Changed("coerce-types") {
		value, _ := flags.GetString("coerce-types")
		var mode schema.CoerceMode
		if err := mode.UnmarshalTOML(parseFlagValue(value)); err != nil {
			return out, err
		}
		out.CoerceTypes = &mode
	}

	for name, target := range map[string]**bool{
		"all-errors":        &out.AllErrors,
		"remove-additional": &out.RemoveAdditional,
		"use-defaults":      &out.UseDefaults,
	} {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetBool(name)
		if err != nil {
			return out, err
		}
		*target = schema.Bool(value)
	}

	return out, nil
}

func parseFlagValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	default:
		return s
	}
}

/*
Serve
1. load manifest and build the host app
2. start watching (optional)
3. listen until interrupted
*/
func Serve(ctx context.Context, logger *zap.Logger, input, addr string, watchFile bool, explicit schema.Options) error {
	srv, err := server.New(input, server.Options{
		Logger:    logger,
		Validator: explicit,
	})
	if err != nil {
		return fmt.Errorf("Unable to load %v: %w", input, err)
	}

	if watchFile {
		go func() {
			if err := srv.Watch(ctx, watch.DefaultDebounceTime); err != nil {
				logger.Warn("Unable to watch for file updates", zap.Error(err))
			}
		}()
	}

	logger.Info("Inspection endpoints available",
		zap.String("document", "/_inspect/openapi.json"),
		zap.String("events", "/_inspect/events"))

	return srv.ListenAndServe(ctx, addr)
}
