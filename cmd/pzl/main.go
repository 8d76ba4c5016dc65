package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/puzzle-agent/pzl/internal/api"
	"github.com/puzzle-agent/pzl/internal/config"
	"github.com/puzzle-agent/pzl/internal/logging"
	"github.com/puzzle-agent/pzl/internal/session"
	"github.com/puzzle-agent/pzl/internal/stream"
	"github.com/puzzle-agent/pzl/internal/telemetry"
	"github.com/puzzle-agent/pzl/internal/watchdog"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(ctx)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", closeErr)
		}
	}()

	telemetry.ServiceVersion = Version
	shutdownTelemetry, err := telemetry.Init(ctx)
	if err != nil {
		logger.Logger.Warn("telemetry disabled", "error", err)
	} else {
		defer shutdownTelemetry()
	}

	cmd := newRootCommand(cfg, logger)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func newRootCommand(cfg *config.Config, logger *logging.RuntimeLogger) *cobra.Command {
	root := &cobra.Command{
		Use:           "pzl",
		Short:         "Puzzle fact-check client",
		Long:          "pzl runs automated fact-check sessions against a Puzzle agent service and streams pipeline progress to your terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	root.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "base URL of the fact-check service")

	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	root.AddCommand(
		newCheckCommand(cfg, logger),
		newTUICommand(cfg, logger),
		newDoctorCommand(cfg, logger.Logger),
		newBugreportCommand(logger.Logger),
	)

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if logger == nil {
			return errors.New("logger is required")
		}
		if cfg == nil {
			return errors.New("config is required")
		}
		logger.Logger.With("command", cmd.Name()).Debug("command invocation")
		return nil
	}

	return root
}

// buildController wires the HTTP client, stream consumer, and watchdog into
// a session controller.
func buildController(cfg *config.Config, logger *log.Logger, extra ...session.Option) (*session.Controller, error) {
	client, err := api.NewClient(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("build api client: %w", err)
	}

	streamFactory := func(ctx context.Context, sessionID string, sink stream.Sink) (io.Closer, error) {
		consumer, err := stream.New(client, sessionID, sink, stream.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		consumer.Start(ctx)
		return consumer, nil
	}

	options := []session.Option{
		session.WithLogger(logger),
		session.WithWatchdogConfig(watchdog.Config{
			PollInterval: cfg.StallPollInterval,
			Threshold:    cfg.StallThreshold,
		}),
	}
	options = append(options, extra...)

	return session.NewController(client, streamFactory, options...)
}

func applyPreset(cfg *config.Config, presetsPath, presetName string) error {
	if presetName == "" {
		return nil
	}
	if presetsPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		presetsPath = filepath.Join(homeDir, ".pzl", "presets.yaml")
	}
	presets, err := config.LoadPresets(presetsPath)
	if err != nil {
		return fmt.Errorf("load presets: %w", err)
	}
	preset, err := config.FindPreset(presets, presetName)
	if err != nil {
		return err
	}
	preset.Apply(cfg)
	return nil
}
