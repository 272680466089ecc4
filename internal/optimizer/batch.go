package optimizer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/foodbank-alloc/fbdam/api/v1alpha1"
	"github.com/foodbank-alloc/fbdam/internal/logging"
	"github.com/foodbank-alloc/fbdam/internal/scenario"
)

// RunBatch runs every scenario, at most parallelism at a time. Reports of the
// scenarios that ran come back in input order. A failing scenario does not stop the others; all
// run errors are joined into the returned error.
func (p *Pipeline) RunBatch(ctx context.Context, scenarios []*scenario.Loaded, parallelism int) ([]*v1alpha1.RunReport, error) {
	if parallelism < 1 {
		parallelism = 1
	}
	logger := logging.FromContext(ctx)
	logger.V(logging.DEBUG).Info("Starting batch", "scenarios", len(scenarios), "parallelism", parallelism)

	reports := make([]*v1alpha1.RunReport, len(scenarios))
	errs := make([]error, len(scenarios))

	var g errgroup.Group
	g.SetLimit(parallelism)
	for i, l := range scenarios {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("scenario %q: %w", l.Scenario.Name, err)
				return nil
			}
			reports[i], errs[i] = p.Run(ctx, l)
			return nil
		})
	}
	_ = g.Wait()

	var done []*v1alpha1.RunReport
	for _, r := range reports {
		if r != nil {
			done = append(done, r)
		}
	}
	return done, errors.Join(errs...)
}
