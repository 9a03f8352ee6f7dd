package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gfimx/internal/daemon"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running agent over its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := daemon.NewClient(cfg.Metrics.Bind, cfg.Metrics.Token)
			if err != nil {
				return fmt.Errorf("api client: %w", err)
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				if daemon.IsAPIUnavailable(err) {
					return fmt.Errorf("agent API not reachable (is the daemon running with metrics.bind set?): %w", err)
				}
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}
			printStatus(cmd, status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit status as JSON")
	return cmd
}

func printStatus(cmd *cobra.Command, s daemon.Status) {
	out := cmd.OutOrStdout()
	uptime := "-"
	if s.Running && !s.Started.IsZero() {
		uptime = time.Since(s.Started).Round(time.Second).String()
	}
	fmt.Fprintf(out, "Agent:     %s (pid %d)\n", s.Agent, s.PID)
	fmt.Fprintf(out, "Running:   %s, up %s\n", yesNo(s.Running), uptime)
	fmt.Fprintf(out, "Store:     %s\n", s.StoreDriver)
	fmt.Fprintf(out, "Watching:  %s directories\n", count(s.WatchedDirs))

	if len(s.Schedules) > 0 {
		rows := make([][]string, 0, len(s.Schedules))
		for _, sched := range s.Schedules {
			rows = append(rows, []string{sched.Name, sched.NextRun.Local().Format(time.DateTime)})
		}
		fmt.Fprintln(out, renderTable([]string{"Schedule", "Next run"}, rows, nil))
	}
	if len(s.Targets) > 0 {
		rows := make([][]string, 0, len(s.Targets))
		for _, t := range s.Targets {
			last := "-"
			if !t.LastRun.IsZero() {
				last = t.LastRun.Local().Format(time.DateTime)
			}
			rows = append(rows, []string{
				t.Name, count(t.Scans), last, count(t.Added), count(t.Modified), count(t.Failed), strings.TrimSpace(t.LastError),
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Target", "Scans", "Last run", "Added", "Modified", "Failed", "Last error"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight},
		))
	}
	if len(s.Pipeline) > 0 {
		rows := make([][]string, 0, len(s.Pipeline))
		for _, h := range s.Pipeline {
			rows = append(rows, []string{h.Name, yesNo(h.Ready), h.Detail})
		}
		fmt.Fprintln(out, renderTable([]string{"Stage", "Ready", "Detail"}, rows, nil))
	}
}
