package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"gfimx/internal/logging"
	"gfimx/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		client     string
		limit      int
		jsonOutput bool
		local      bool
		follow     bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show agent log lines from the broker or the local log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if local || follow {
				path := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
				lines, offset, err := logs.Last(path, limit)
				if err != nil {
					return err
				}
				for _, line := range lines {
					fmt.Fprintln(out, line)
				}
				if !follow {
					return nil
				}
				followCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return logs.Follow(followCtx, path, offset, func(line string) {
					fmt.Fprintln(out, line)
				})
			}

			if client == "" {
				client = cfg.Agent.Name
			}
			b, err := ctx.connectBroker(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			lines, err := b.Logs(cmd.Context(), client, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, lines)
			}
			// Newest first on the broker; print oldest first like a log file.
			for i := len(lines) - 1; i >= 0; i-- {
				fmt.Fprintln(out, lines[i])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "Agent whose broker logs to show (defaults to agent.name)")
	cmd.Flags().IntVarP(&limit, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit broker lines as a JSON array, newest first")
	cmd.Flags().BoolVar(&local, "local", false, "Read the local log file instead of the broker")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow the local log file (implies --local)")
	return cmd
}
