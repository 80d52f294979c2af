package types

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Hooks defines callbacks for Runner lifecycle events.
//
// All hooks are optional. Unlike a long-lived service, a k-means run is a
// short lockstep computation, so hooks are invoked synchronously on the worker
// goroutine between collective calls. A slow hook delays the whole group.
//
// Hook execution behavior:
//   - Hook errors are logged but don't fail the run
//   - Hooks must not mutate the matrices they receive
//
// Example:
//
//	hooks := &dkmeans.Hooks{
//	    OnIterationComplete: func(ctx context.Context, iter int, centroids *mat.Dense) error {
//	        log.Printf("iteration %d done", iter)
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnIterationComplete is called after the centroid update of each iteration.
	// iter is zero-based.
	OnIterationComplete func(ctx context.Context, iter int, centroids *mat.Dense) error

	// OnStateChanged is called when the worker state transitions.
	OnStateChanged func(ctx context.Context, from, to State) error

	// OnError is called when the run aborts.
	OnError func(ctx context.Context, err error) error
}
