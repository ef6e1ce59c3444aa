// Package commands implements the shockwave command line.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/chazu/shockwave/pkg/config"
	"github.com/chazu/shockwave/pkg/pipeline"
	"github.com/chazu/shockwave/pkg/telemetry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath  string
	logLevel    string
	logFormat   string
	logOutput   string
	metricsAddr string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	return newRootCommand(version, commit, buildDate).ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shockwave",
		Short: "Shockwave - non-planar slicer",
		Long: `Shockwave decomposes a 3D model into printable slices whose top
surfaces follow the shape already printed below them, so each slice can be
printed without the nozzle striking finished material.

Models are STL meshes or .swm model scripts.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "printer and slicer YAML file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console or json)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "log destination (stderr, stdout or a file path)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(newSliceCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}

// loadConfig reads --config, or returns the defaults when it is unset.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// setup builds the logger and the pipeline shared by the slicing commands.
// When --metrics-addr is set, metrics are served until ctx is done. The
// caller must call done once the command finishes; it closes the log file.
func setup(ctx context.Context, opts ...pipeline.Option) (p *pipeline.Pipeline, log zerolog.Logger, done func(), err error) {
	log, closer, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: logLevel, Format: logFormat, Output: logOutput})
	if err != nil {
		return nil, zerolog.Nop(), func() {}, err
	}
	done = func() {
		if err := closer.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "shockwave: close log output: %v\n", err)
		}
	}
	defer func() {
		if err != nil {
			done()
			done = func() {}
		}
	}()

	cfg, err := loadConfig()
	if err != nil {
		return nil, log, done, err
	}

	opts = append([]pipeline.Option{pipeline.WithLogger(log)}, opts...)
	if metricsAddr != "" {
		m := telemetry.NewMetrics("shockwave")
		opts = append(opts, pipeline.WithObserver(m))
		go func() {
			if err := m.Serve(ctx, metricsAddr, log); err != nil {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	p, err = pipeline.New(cfg, opts...)
	if err != nil {
		return nil, log, done, err
	}
	log.Debug().Str("config_key", cfg.Key()).Str("kernel", fmt.Sprintf("%T", p.Kernel())).Msg("Pipeline ready")
	return p, log, done, nil
}
