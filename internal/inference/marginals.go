package inference

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Marginals computes the single-variable posterior of each name under the
// same evidence, all variables in declaration order when names is empty. At
// most workers queries run at once (unbounded when workers < 1). Results come
// back in the order of names; the first failure cancels the rest.
func (e *Engine) Marginals(ctx context.Context, names []string, evidence map[string]string, workers int) ([]*Result, error) {
	if len(names) == 0 {
		for _, v := range e.net.Variables() {
			names = append(names, v.Name)
		}
	}

	results := make([]*Result, len(names))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, name := range names {
		g.Go(func() error {
			res, err := e.Query(gctx, []string{name}, evidence)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
