package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kubev2v/logdriver-e2e/internal/agent"
)

func newKillCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kill",
		Short: "Kill every running instance of the plugin binary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name := filepath.Base(cfg.Agent.BinaryPath)
			n, err := agent.KillAll(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "killed %d %s process(es)\n", n, name)
			return nil
		},
	}
}
