package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubev2v/logdriver-e2e/internal/harness"
	"github.com/kubev2v/logdriver-e2e/internal/producer"
)

func newProduceCommand() *cobra.Command {
	var (
		lines    []string
		replay   string
		partial  bool
		interval time.Duration
		duration time.Duration
		text     string
		id       string
	)

	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Write framed records into the pipe shared with the plugin",
		Long: `Write framed records into the pipe shared with the plugin.

Exactly one of --line, --replay or --interval selects the input. The command
blocks until the plugin opens the pipe for reading.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var feed harness.Feed
			switch {
			case len(lines) > 0 && replay == "" && interval == 0:
				feed = harness.Lines(parseInputs(lines)...)
			case replay != "" && len(lines) == 0 && interval == 0:
				feed = harness.FileFeed{Path: replay, Spec: producer.ReplaySpec{ChunkSize: cfg.Producer.ChunkSize, Partial: partial}}
			case interval > 0 && len(lines) == 0 && replay == "":
				feed = harness.IntervalFeed{Interval: interval, Duration: duration, Text: text}
			default:
				return errors.New("exactly one of --line, --replay or --interval is required")
			}

			p, err := producer.Open(cmd.Context(), cfg.Producer.FIFOPath, producer.SinkOptions{
				CreateFIFO:  cfg.Producer.CreateFIFO,
				OpenTimeout: cfg.Producer.OpenTimeout,
			}, producer.WithSource(cfg.Producer.Source))
			if err != nil {
				return err
			}
			defer p.Close()

			n, err := feed.Produce(cmd.Context(), p, id)
			if err != nil {
				return err
			}
			zap.S().Named("produce").Infow("records written", "path", cfg.Producer.FIFOPath, "records", n)
			fmt.Fprintf(cmd.OutOrStdout(), "%d records written to %s\n", n, cfg.Producer.FIFOPath)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&lines, "line", nil, "line to write, repeatable; suffix with :partial for a partial fragment")
	cmd.Flags().StringVar(&replay, "replay", "", "file to replay in chunks (.gz is decompressed)")
	cmd.Flags().BoolVar(&partial, "partial", false, "flag every replayed chunk but the last as partial")
	cmd.Flags().DurationVar(&interval, "interval", 0, "write --text every interval")
	cmd.Flags().DurationVar(&duration, "duration", time.Second, "how long to keep writing with --interval")
	cmd.Flags().StringVar(&text, "text", "tick", "payload written with --interval")
	cmd.Flags().StringVar(&id, "id", "", "correlation id prefixed to non-blank payloads, none when empty")
	return cmd
}
