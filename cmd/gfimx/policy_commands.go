package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"gfimx/internal/policy"
)

func newPolicyCommand(ctx *commandContext) *cobra.Command {
	policyCmd := &cobra.Command{
		Use:   "policy",
		Short: "Validate and distribute monitoring policies",
	}
	policyCmd.AddCommand(newPolicyCheckCommand())
	policyCmd.AddCommand(newPolicyPushCommand(ctx))
	return policyCmd
}

func newPolicyCheckCommand() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:         "check <file>",
		Short:       "Parse and validate a policy file",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := policy.LoadFile(args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, pol)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Policy %s is valid\n", args[0])
			fmt.Fprintln(out, renderTable([]string{"Section", "Timing", "Dirs", "Ignores"}, policyRows(pol), nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the parsed policy as JSON")
	return cmd
}

func policyRows(pol *policy.Policy) [][]string {
	var rows [][]string
	if pol.Watch != nil {
		rows = append(rows, []string{"watch", "events", strings.Join(pol.Watch.Dirs, "\n"), ignoreSummary(pol.Watch.IgnoreFiles, pol.Watch.IgnoreDirs)})
	}
	for _, name := range pol.ScheduleNames() {
		s := pol.Schedule[name]
		timing := ""
		switch {
		case s.Interval != nil:
			timing = fmt.Sprintf("every %ds", *s.Interval)
		case s.Cron != nil:
			timing = "cron " + *s.Cron
		}
		rows = append(rows, []string{"schedule." + name, timing, strings.Join(s.Dirs, "\n"), ignoreSummary(s.IgnoreFiles, s.IgnoreDirs)})
	}
	return rows
}

func ignoreSummary(files, dirs *policy.Ignore) string {
	n := func(i *policy.Ignore) int {
		if i == nil {
			return 0
		}
		return len(i.Patterns) + len(i.Paths)
	}
	return fmt.Sprintf("%d file, %d dir", n(files), n(dirs))
}

func newPolicyPushCommand(ctx *commandContext) *cobra.Command {
	var dir string
	var only []string
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Publish policies from the policy directory to the broker",
		Long: "Push reads clients.toml from the policy directory, validates each client's\n" +
			"policy file, and stores it under <client>_policy on the broker.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(dir) == "" {
				dir = cfg.Agent.PolicyDir
			}
			clients, err := policy.LoadClients(dir)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(clients))
			for name := range clients {
				if len(only) == 0 || contains(only, name) {
					names = append(names, name)
				}
			}
			if len(names) == 0 {
				return fmt.Errorf("no matching clients in %s", filepath.Join(dir, "clients.toml"))
			}
			sort.Strings(names)

			texts := make(map[string]string, len(names))
			for _, name := range names {
				path := clients[name].Policy
				if !filepath.IsAbs(path) {
					path = filepath.Join(dir, path)
				}
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("client %s: read policy: %w", name, err)
				}
				if _, err := policy.Parse(string(data)); err != nil {
					return fmt.Errorf("client %s: %w", name, err)
				}
				texts[name] = string(data)
			}

			b, err := ctx.connectBroker(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			rows := make([][]string, 0, len(names))
			for _, name := range names {
				if err := b.PutPolicy(cmd.Context(), name, texts[name]); err != nil {
					return err
				}
				rows = append(rows, []string{name, clients[name].Policy})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Client", "Policy"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Policy directory (defaults to agent.policy_dir)")
	cmd.Flags().StringSliceVar(&only, "client", nil, "Only push these clients (repeatable)")
	return cmd
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
