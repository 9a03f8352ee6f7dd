package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gfimx/internal/config"
	"gfimx/internal/daemon"
	"gfimx/internal/logging"
	"gfimx/internal/policy"
	"gfimx/internal/report"
	"gfimx/internal/scan"
	"gfimx/internal/schedule"
)

type scanOptions struct {
	name          string
	fileIgnore    policy.Ignore
	dirIgnore     policy.Ignore
	compare       string
	ephemeral     bool
	jsonOutput    bool
	publish       bool
	policyFile    string
	scheduleName  string
	quiet         bool
	verboseOutput bool
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Run a one-shot scan and report changes against the baseline",
		Long: "Scan hashes every regular file under the given paths, compares each against\n" +
			"the baseline store, records the new state, and lists added or modified files.\n" +
			"With --schedule, the paths and filters come from a policy schedule instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, ctx, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.name, "name", "cli", "Target name recorded with the scan")
	flags.StringSliceVar(&opts.fileIgnore.Patterns, "ignore-file-pattern", nil, "Regular expression of file paths to skip (repeatable)")
	flags.StringSliceVar(&opts.fileIgnore.Paths, "ignore-file-path", nil, "Path prefix of files to skip (repeatable)")
	flags.StringSliceVar(&opts.dirIgnore.Patterns, "ignore-dir-pattern", nil, "Regular expression of directories to skip (repeatable)")
	flags.StringSliceVar(&opts.dirIgnore.Paths, "ignore-dir-path", nil, "Path prefix of directories to skip (repeatable)")
	flags.StringVar(&opts.compare, "compare", "", "Comparison mode: content or metadata (defaults to scan.compare)")
	flags.BoolVar(&opts.ephemeral, "ephemeral", false, "Use an in-memory baseline instead of the configured store")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Emit the scan summary as JSON")
	flags.BoolVar(&opts.publish, "publish", false, "Also publish changes to the configured broker and Kafka topic")
	flags.StringVar(&opts.policyFile, "policy", "", "Policy file used with --schedule (defaults to agent.policy_file)")
	flags.StringVar(&opts.scheduleName, "schedule", "", "Scan the target of a policy schedule, or \"watch\" for the watch section")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Only print the totals")
	flags.BoolVarP(&opts.verboseOutput, "verbose", "v", false, "Log pipeline activity to stdout")

	return cmd
}

func runScan(cmd *cobra.Command, cmdCtx *commandContext, opts *scanOptions, args []string) error {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return err
	}
	runCfg := *cfg
	if opts.compare != "" {
		runCfg.Scan.Compare = strings.ToLower(strings.TrimSpace(opts.compare))
		if runCfg.Scan.Compare != config.CompareContent && runCfg.Scan.Compare != config.CompareMetadata {
			return fmt.Errorf("--compare %q is not supported (use content or metadata)", opts.compare)
		}
	}

	target, err := scanTarget(&runCfg, opts, args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := logging.NewNop()
	if opts.verboseOutput {
		logger, err = logging.NewFromConfig(&runCfg)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
	}

	store, err := cmdCtx.openStore(ctx, opts.ephemeral)
	if err != nil {
		return err
	}
	defer store.Close()

	scanOpts := []scan.Option{}
	if opts.publish {
		var details report.DetailsSink
		if runCfg.BrokerEnabled() {
			b, err := cmdCtx.connectBroker(ctx)
			if err != nil {
				return err
			}
			defer b.Close()
			details = b
		}
		reporter, closers := buildReporter(&runCfg, logger, details)
		defer func() {
			for _, closeFn := range closers {
				_ = closeFn()
			}
		}()
		scanOpts = append(scanOpts, scan.WithReporter(reporter))
	}

	scanner := scan.NewScanner(scan.ConfigFrom(&runCfg), store, logging.NewComponentLogger(logger, "scanner"), scanOpts...)
	summary, err := scanner.Scan(ctx, target)
	if err != nil && summary.Duration == 0 {
		return err
	}

	if opts.jsonOutput {
		if jerr := writeJSON(cmd, summary); jerr != nil {
			return jerr
		}
		return err
	}
	printSummary(cmd.OutOrStdout(), summary, opts.quiet)
	return err
}

func scanTarget(cfg *config.Config, opts *scanOptions, args []string) (scan.Target, error) {
	if opts.scheduleName == "" {
		if len(args) == 0 {
			return scan.Target{}, errors.New("scan requires at least one path, or --schedule")
		}
		dirs := make([]string, 0, len(args))
		for _, arg := range args {
			abs, err := filepath.Abs(arg)
			if err != nil {
				return scan.Target{}, fmt.Errorf("resolve %q: %w", arg, err)
			}
			dirs = append(dirs, abs)
		}
		return schedule.TargetFor(opts.name, dirs, &opts.fileIgnore, &opts.dirIgnore)
	}
	if len(args) > 0 {
		return scan.Target{}, errors.New("paths and --schedule are mutually exclusive")
	}

	path := opts.policyFile
	if path == "" {
		path = cfg.Agent.PolicyFile
	}
	if path == "" {
		return scan.Target{}, errors.New("--schedule needs a policy: pass --policy or set agent.policy_file")
	}
	pol, err := policy.LoadFile(path)
	if err != nil {
		return scan.Target{}, err
	}
	if opts.scheduleName == daemon.WatchTarget {
		if pol.Watch == nil {
			return scan.Target{}, fmt.Errorf("policy %s has no [watch] section", path)
		}
		return schedule.TargetFor(daemon.WatchTarget, pol.Watch.Dirs, pol.Watch.IgnoreFiles, pol.Watch.IgnoreDirs)
	}
	sched, ok := pol.Schedule[opts.scheduleName]
	if !ok {
		return scan.Target{}, fmt.Errorf("policy %s has no schedule %q (have: %s)", path, opts.scheduleName, strings.Join(pol.ScheduleNames(), ", "))
	}
	return schedule.TargetFor(opts.scheduleName, sched.Dirs, sched.IgnoreFiles, sched.IgnoreDirs)
}

func printSummary(out io.Writer, s scan.Summary, quiet bool) {
	fmt.Fprintf(out, "Scan %s (%s) finished in %s\n", s.ScanID, s.Target, s.Duration.Round(time.Millisecond))
	fmt.Fprintln(out, renderTable(
		[]string{"Roots", "Dirs", "Files", "Bytes", "Added", "Modified", "Unchanged", "Failed"},
		[][]string{{
			count(s.Roots), count(s.Dirs), count(s.Files), count(s.Bytes),
			count(s.Added), count(s.Modified), count(s.Unchanged), count(s.Failed),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
	))
	if quiet {
		return
	}
	if len(s.Changes) == 0 {
		fmt.Fprintln(out, "No changes")
		return
	}
	color := shouldColorize(out)
	rows := make([][]string, 0, len(s.Changes))
	for _, c := range s.Changes {
		rows = append(rows, []string{kindLabel(c.Kind, color), c.Identity, shortHash(c.New.Hash), fmt.Sprintf("%04o", c.New.Perms)})
	}
	fmt.Fprintln(out, renderTable([]string{"Change", "Path", "Hash", "Mode"}, rows, nil))
}
