package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/puzzle-agent/pzl/internal/config"
	"github.com/puzzle-agent/pzl/internal/event"
	"github.com/puzzle-agent/pzl/internal/logging"
	"github.com/puzzle-agent/pzl/internal/session"
	"github.com/puzzle-agent/pzl/internal/tui/components"
)

const customClaimChoice = "__custom__"

// exampleClaims are seeded sample inputs offered when the command is run
// without any claim text.
var exampleClaims = []struct {
	Title string
	Text  string
}{
	{
		Title: "国际政治",
		Text:  "最近有网络流传说法称，2025 年初，美国共和党议员Riley Moore通过了一项新法案，将禁止中国公民以学生身份来美国。这项法案会导致每年大约30万中国学生将无法获得F、J、M类签证，从而无法到美国学习或参与学术交流。",
	},
	{
		Title: "科技新闻",
		Text:  "Open AI CEO 在 2025 年 3 月 25 日宣布，Open AI 将推出新的 AI 模型 GPT-5，称该模型将实现 AGI",
	},
	{
		Title: "环境新闻",
		Text:  "2025 年 3 月 25 日，美国国家海洋和大气管理局（NOAA）发布报告称，由于全球变暖，北极冰川可能在2030年完全消失。",
	},
	{
		Title: "健康信息",
		Text:  "每天喝一杯咖啡可以降低40%的心脏病风险，新研究涉及超过 10 万参与者。",
	},
}

func newCheckCommand(cfg *config.Config, logger *logging.RuntimeLogger) *cobra.Command {
	var presetName string
	var presetsPath string
	var plainOutput bool

	cmd := &cobra.Command{
		Use:   "check [text]",
		Short: "Run a fact check and print the report",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyPreset(cfg, presetsPath, presetName); err != nil {
				return err
			}

			claim := strings.TrimSpace(strings.Join(args, " "))
			if claim == "" {
				prompted, err := promptForClaim()
				if err != nil {
					return err
				}
				claim = prompted
			}

			return runCheck(cmd.Context(), cmd.OutOrStdout(), cfg, logger, claim, plainOutput)
		},
	}

	cmd.Flags().StringVar(&presetName, "preset", "", "model preset name from the presets file")
	cmd.Flags().StringVar(&presetsPath, "presets-file", "", "path to the presets YAML file (default ~/.pzl/presets.yaml)")
	cmd.Flags().BoolVar(&plainOutput, "plain", false, "print the report as raw markdown")
	return cmd
}

// promptForClaim collects claim text interactively, offering the example
// claims as a starting point.
func promptForClaim() (string, error) {
	options := make([]huh.Option[string], 0, len(exampleClaims)+1)
	options = append(options, huh.NewOption("Enter my own text", customClaimChoice))
	for _, example := range exampleClaims {
		options = append(options, huh.NewOption(example.Title+": "+truncate(example.Text, 60), example.Text))
	}

	var choice string
	var custom string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("What should be fact-checked?").
				Options(options...).
				Value(&choice),
		),
		huh.NewGroup(
			huh.NewText().
				Title("Claim or news text").
				CharLimit(0).
				Value(&custom).
				Validate(func(value string) error {
					if strings.TrimSpace(value) == "" {
						return fmt.Errorf("text must not be empty")
					}
					return nil
				}),
		).WithHideFunc(func() bool {
			return choice != customClaimChoice
		}),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("collect claim text: %w", err)
	}

	if choice == customClaimChoice {
		return strings.TrimSpace(custom), nil
	}
	return choice, nil
}

// checkObserver prints run progress as it happens. It is invoked under the
// controller lock, so it only formats and writes.
type checkObserver struct {
	out      io.Writer
	terminal chan session.Status
}

func (o *checkObserver) StatusChanged(_, to session.Status, _ string) {
	if !to.Terminal() {
		return
	}
	select {
	case o.terminal <- to:
	default:
	}
}

func (o *checkObserver) EventAppended(evt event.Event) {
	if evt.Kind == event.KindHeartbeat {
		return
	}
	line := components.KindLabel(evt.Kind)
	if message := strings.TrimSpace(evt.Message()); message != "" {
		line += ": " + message
	}
	fmt.Fprintf(o.out, "%s  %s\n", evt.ReceivedAt.Format("15:04:05"), line)
}

func runCheck(
	ctx context.Context,
	out io.Writer,
	cfg *config.Config,
	logger *logging.RuntimeLogger,
	claim string,
	plainOutput bool,
) error {
	observer := &checkObserver{out: out, terminal: make(chan session.Status, 1)}

	controller, err := buildController(cfg, logger.Logger, session.WithObserver(observer))
	if err != nil {
		return err
	}

	if err := controller.Start(ctx, claim, cfg.LaunchConfig()); err != nil {
		return err
	}
	logger.WithSessionID(controller.Snapshot().SessionID)

	var final session.Status
	select {
	case final = <-observer.terminal:
	case <-ctx.Done():
		return ctx.Err()
	}

	snapshot := controller.Snapshot()
	if final == session.StatusCompleted && snapshot.Result != nil {
		if err := printReport(out, snapshot.Result, plainOutput); err != nil {
			return err
		}
		return nil
	}

	return fmt.Errorf("fact check did not complete (status %s)", final)
}

func printReport(out io.Writer, result *event.Result, plainOutput bool) error {
	fmt.Fprintf(out, "\nVerdict: %s\n\n", result.Verdict)

	if plainOutput {
		fmt.Fprintln(out, result.Report)
		return nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		fmt.Fprintln(out, result.Report)
		return nil
	}
	rendered, err := renderer.Render(result.Report)
	if err != nil {
		fmt.Fprintln(out, result.Report)
		return nil
	}
	fmt.Fprint(out, rendered)
	return nil
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
