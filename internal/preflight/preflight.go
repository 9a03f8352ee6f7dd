package preflight

import (
	"context"
	"sort"

	"gfimx/internal/config"
	"gfimx/internal/policy"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every applicable check. pol may be nil when no policy
// could be loaded.
func RunAll(ctx context.Context, cfg *config.Config, pol *policy.Policy) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	results = append(results, CheckStore(ctx, cfg))

	if cfg.BrokerEnabled() {
		results = append(results, CheckBroker(ctx, cfg))
	}
	if len(cfg.Report.KafkaBrokers) > 0 {
		results = append(results, CheckKafka(ctx, cfg.Report.KafkaBrokers))
	}
	if cfg.ExportEnabled() {
		results = append(results, CheckTCP(ctx, "Export endpoint", cfg.Export.Endpoint))
	}
	if pol != nil {
		results = append(results, CheckRoots(pol)...)
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// Roots lists every distinct directory named by the policy, sorted.
func Roots(pol *policy.Policy) []string {
	if pol == nil {
		return nil
	}
	seen := map[string]struct{}{}
	add := func(dirs []string) {
		for _, d := range dirs {
			seen[d] = struct{}{}
		}
	}
	if pol.Watch != nil {
		add(pol.Watch.Dirs)
	}
	for _, s := range pol.Schedule {
		add(s.Dirs)
	}
	roots := make([]string, 0, len(seen))
	for d := range seen {
		roots = append(roots, d)
	}
	sort.Strings(roots)
	return roots
}
