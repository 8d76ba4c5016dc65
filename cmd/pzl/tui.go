package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/puzzle-agent/pzl/internal/config"
	"github.com/puzzle-agent/pzl/internal/logging"
	"github.com/puzzle-agent/pzl/internal/tui"
)

func newTUICommand(cfg *config.Config, logger *logging.RuntimeLogger) *cobra.Command {
	var presetName string
	var presetsPath string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch the interactive fact-check dashboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := applyPreset(cfg, presetsPath, presetName); err != nil {
				return err
			}

			controller, err := buildController(cfg, logger.Logger)
			if err != nil {
				return err
			}

			model := tui.New(controller, cfg.LaunchConfig(), logger.Logger)
			program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if _, err := program.Run(); err != nil {
				return fmt.Errorf("run dashboard: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&presetName, "preset", "", "model preset name from the presets file")
	cmd.Flags().StringVar(&presetsPath, "presets-file", "", "path to the presets YAML file (default ~/.pzl/presets.yaml)")
	return cmd
}
