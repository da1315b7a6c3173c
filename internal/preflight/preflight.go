package preflight

import (
	"context"
	"strings"

	"kitsupub/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// The tracker check only runs when a host is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir))

	if strings.TrimSpace(cfg.Paths.ProductionRoot) != "" {
		results = append(results, CheckDirectoryAccess("Production root", cfg.Paths.ProductionRoot))
	}

	for _, dep := range CheckSystemDeps(cfg) {
		r := Result{Name: dep.Name, Passed: dep.Available, Detail: dep.Command}
		if !dep.Available {
			r.Detail = dep.Detail
		}
		results = append(results, r)
	}

	if strings.TrimSpace(cfg.Tracker.Host) != "" {
		results = append(results, CheckTrackerFromConfig(ctx, cfg))
	}

	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
