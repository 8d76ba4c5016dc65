package main

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/puzzle-agent/pzl/internal/config"
	"github.com/puzzle-agent/pzl/internal/doctor"
)

func newDoctorCommand(cfg *config.Config, logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run preflight checks against the configured service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			checker, err := doctor.New(cfg.ServerURL)
			if err != nil {
				return err
			}

			report := checker.Run(cmd.Context())
			out := cmd.OutOrStdout()
			for _, check := range report.Checks {
				marker := "ok"
				if check.Status != doctor.CheckOK {
					marker = "FAIL"
				}
				fmt.Fprintf(out, "[%s] %s: %s\n", marker, check.Name, check.Detail)
			}

			if !report.Healthy() {
				logger.Warn("doctor found problems")
				return fmt.Errorf("preflight checks failed")
			}
			fmt.Fprintln(out, "All checks passed.")
			return nil
		},
	}
}
