package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kubev2v/logdriver-e2e/internal/models"
	"github.com/kubev2v/logdriver-e2e/pkg/search"
)

func newSearchCommand() *cobra.Command {
	var (
		filter   string
		index    string
		earliest string
		latest   string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run a search and print each result as a JSON line",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if index == "" {
				index = cfg.Search.Index
			}
			out, err := search.NewClient(cfg.Search.ClientConfig()).Run(cmd.Context(), search.Query{
				Index:     index,
				Filter:    filter,
				TimeRange: models.TimeRange{Earliest: earliest, Latest: latest},
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range out.Results {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			if out.Exhausted {
				fmt.Fprintf(cmd.ErrOrStderr(), "search job %s did not finish after %d polls\n", out.Job.ID, out.Polls)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "search terms after the index")
	cmd.Flags().StringVar(&index, "index", "", "index to search (default search-index)")
	cmd.Flags().StringVar(&earliest, "earliest", "-24h@h", "earliest time modifier")
	cmd.Flags().StringVar(&latest, "latest", "now", "latest time modifier")
	return cmd
}
