package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kubev2v/logdriver-e2e/internal/harness"
	"github.com/kubev2v/logdriver-e2e/pkg/scheduler"
	"github.com/kubev2v/logdriver-e2e/pkg/search"
)

var (
	green  = color.New(color.FgGreen, color.Bold).SprintFunc()
	red    = color.New(color.FgRed, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

func newRunCommand() *cobra.Command {
	var (
		name   string
		lines  []string
		opts   map[string]string
		expect int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one scenario: produce, start, stop, search and compare",
		Example: `  logdriver-e2e run --control-hec-url https://localhost:8088 --control-hec-token $TOKEN \
    --line start:partial --line "in the middle:partial" --line end --expect 1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.ValidateRun(); err != nil {
				return err
			}
			if len(lines) == 0 {
				return fmt.Errorf("at least one --line is required")
			}

			sched := scheduler.NewScheduler(cfg.Harness.Workers)
			defer sched.Close()

			h := harness.New(cfg, newControlClient(), search.NewClient(cfg.Search.ClientConfig()), sched)
			report, err := h.Run(cmd.Context(), harness.Scenario{
				Name:    name,
				Feed:    harness.Lines(parseInputs(lines)...),
				Options: opts,
			})
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %v\n", red("FAIL"), name, err)
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s %s\n", gray("correlation id"), report.CorrelationID)
			fmt.Fprintf(w, "%s %d\n", gray("records written"), report.Records)
			fmt.Fprintf(w, "%s %d (after %d polls)\n", gray("events found"), len(report.Results), report.Polls)
			for _, r := range report.Results {
				fmt.Fprintf(w, "  %s\n", r.Raw())
			}
			if report.Exhausted {
				fmt.Fprintln(w, yellow("search did not finish within the poll budget"))
			}

			if expect >= 0 && len(report.Results) != expect {
				fmt.Fprintf(w, "%s %s: expected %d events, got %d\n", red("FAIL"), name, expect, len(report.Results))
				return fmt.Errorf("scenario %s: expected %d events, got %d", name, expect, len(report.Results))
			}
			fmt.Fprintf(w, "%s %s\n", green("PASS"), name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "adhoc", "scenario name used in logs")
	cmd.Flags().StringArrayVar(&lines, "line", nil, "line to write, repeatable; suffix with :partial for a partial fragment")
	cmd.Flags().StringToStringVar(&opts, "opt", nil, "driver option k=v, repeatable")
	cmd.Flags().IntVar(&expect, "expect", -1, "expected number of events, -1 to skip the check")
	return cmd
}
