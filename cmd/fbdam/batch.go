package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/foodbank-alloc/fbdam/internal/logging"
	"github.com/foodbank-alloc/fbdam/internal/optimizer"
	"github.com/foodbank-alloc/fbdam/internal/scenario"
)

func (a *app) batchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch PATTERN...",
		Short: "Run every scenario matching the glob patterns",
		Long: `Expands each pattern (doublestar syntax, e.g. scenarios/**/*.yaml) and runs
the matching scenarios concurrently, bounded by --parallelism. Every
scenario is loaded before any is solved, so a broken file fails the batch
early.`,
		Example: `  fbdam batch 'examples/scenarios/*.yaml'
  fbdam batch --parallelism 8 'scenarios/**/*.yaml'`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expand(args)
			if err != nil {
				return err
			}
			logger := logging.FromContext(cmd.Context())
			logger.Info("Running batch", "scenarios", len(paths), "parallelism", a.settings.Parallelism)

			loaded := make([]*scenario.Loaded, 0, len(paths))
			for _, p := range paths {
				l, err := scenario.Load(p)
				if err != nil {
					return err
				}
				loaded = append(loaded, l)
			}

			p, err := a.pipeline()
			if err != nil {
				return err
			}
			reports, runErr := p.RunBatch(cmd.Context(), loaded, a.settings.Parallelism)
			var writeErrs []error
			for _, r := range reports {
				path, err := optimizer.WriteReport(a.settings.OutputDir, r)
				if err != nil {
					writeErrs = append(writeErrs, err)
				}
				printSummary(a.out, r, path)
			}
			return errors.Join(runErr, errors.Join(writeErrs...))
		},
	}
	return cmd
}

// expand resolves glob patterns into a sorted, de-duplicated file list.
func expand(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePathPattern(pattern) {
			return nil, fmt.Errorf("%w: invalid pattern %q", errUsage, pattern)
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", errUsage, pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no scenario files match %v", errUsage, patterns)
	}
	sort.Strings(out)
	return out, nil
}
