package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"gfimx/internal/config"
	"gfimx/internal/policy"
	"gfimx/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify directories, store, services, and policy roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			pol, polResult := loadPolicyForCheck(cmd.Context(), ctx, cfg)
			results := append([]preflight.Result{polResult}, preflight.RunAll(cmd.Context(), cfg, pol)...)

			if jsonOutput {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				color := shouldColorize(out)
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					rows = append(rows, []string{r.Name, statusLabel(r.Passed, color), r.Detail})
				}
				fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit results as JSON")
	return cmd
}

func loadPolicyForCheck(cmdCtx context.Context, ctx *commandContext, cfg *config.Config) (*policy.Policy, preflight.Result) {
	result := preflight.Result{Name: "Policy"}
	var (
		pol *policy.Policy
		err error
	)
	switch {
	case cfg.BrokerEnabled():
		b, dialErr := ctx.connectBroker(cmdCtx)
		if dialErr != nil {
			err = dialErr
			break
		}
		defer b.Close()
		body, getErr := b.GetPolicy(cmdCtx)
		if getErr != nil {
			err = getErr
			break
		}
		pol, err = policy.Parse(body)
		result.Detail = "from broker"
	case cfg.Agent.PolicyFile != "":
		pol, err = policy.LoadFile(cfg.Agent.PolicyFile)
		result.Detail = cfg.Agent.PolicyFile
	default:
		err = errors.New("no broker and no agent.policy_file")
	}
	if err != nil {
		result.Detail = err.Error()
		return nil, result
	}
	result.Passed = true
	result.Detail += fmt.Sprintf(" (%d schedules, watch: %s)", len(pol.Schedule), yesNo(pol.Watch != nil))
	return pol, result
}

func statusLabel(passed, color bool) string {
	label := "FAIL"
	fg := text.FgRed
	if passed {
		label = "OK"
		fg = text.FgGreen
	}
	if !color {
		return label
	}
	return fg.Sprint(label)
}
