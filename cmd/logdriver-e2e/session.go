package main

import (
	"fmt"
	"maps"

	"github.com/spf13/cobra"

	"github.com/kubev2v/logdriver-e2e/pkg/control"
)

func newControlClient() *control.Client {
	return control.NewClient(cfg.Control.SocketPath,
		control.WithTimeout(cfg.Control.Timeout),
		control.WithContainerID(cfg.Control.ContainerID),
		control.WithLogPath(cfg.Control.LogPath),
	)
}

func newStartCommand() *cobra.Command {
	var (
		file string
		opts map[string]string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Ask the plugin to start logging from a file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = cfg.Producer.FIFOPath
			}
			options := cfg.Control.DriverOptions()
			maps.Copy(options, opts)

			if err := newControlClient().StartLogging(cmd.Context(), file, options); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logging started for %s\n", file)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "file or pipe the plugin reads (default producer-fifo-path)")
	cmd.Flags().StringToStringVar(&opts, "opt", nil, "driver option k=v, repeatable; overrides the configured ones")
	return cmd
}

func newStopCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask the plugin to stop logging from a file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = cfg.Producer.FIFOPath
			}
			if err := newControlClient().StopLogging(cmd.Context(), file); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logging stopped for %s\n", file)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "file or pipe the plugin reads (default producer-fifo-path)")
	return cmd
}
