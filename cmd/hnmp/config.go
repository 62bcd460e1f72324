package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Zereker/hnmp/internal/config"
)

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration if the file does not exist",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = "hnmp.yaml"
			}

			created, err := config.EnsureFile(path)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", path)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "server:     %s:%d\n", cfg.Server.Address, cfg.Server.Port)
			fmt.Fprintf(out, "send queue: %d frames\n", cfg.Client.SendBuffer)
			fmt.Fprintf(out, "read size:  %d bytes\n", cfg.Client.ReadBuffer)
			fmt.Fprintf(out, "max frame:  %d bytes\n", cfg.Client.MaxFrameSize)
			fmt.Fprintf(out, "dial:       %s\n", cfg.Client.DialTimeout)
			fmt.Fprintf(out, "packet log: %q\n", cfg.Telemetry.PacketLogPath)
			fmt.Fprintf(out, "metrics:    %q\n", cfg.Telemetry.MetricsAddr)
			fmt.Fprintf(out, "log level:  %s\n", cfg.Log.Level)
			return nil
		},
	})

	return cmd
}
