package reparent

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
)

// Move is one requested reparent. A nil Parent moves the bean to the top level.
type Move struct {
	Candidate bean.Bean
	Parent    *bean.Bean
}

// ValidateAll validates moves concurrently, at most limit at a time
// (limit < 1 means unbounded). Results are in the same order as moves.
// Each move's ancestor walk stays sequential.
func (v *Validator) ValidateAll(ctx context.Context, moves []Move, lookup Lookup, limit int) []Result {
	results := make([]Result, len(moves))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, m := range moves {
		g.Go(func() error {
			results[i] = v.Validate(gctx, m.Candidate, m.Parent, lookup)
			return nil
		})
	}
	_ = g.Wait() // validations never fail
	return results
}
