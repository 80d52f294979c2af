// Package hooks provides default Hooks implementations.
package hooks

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/dkmeans/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// Compile-time assertions that NopHooks implements hook callbacks.
var (
	_ func(context.Context, int, *mat.Dense) error          = (*NopHooks)(nil).OnIterationComplete
	_ func(context.Context, types.State, types.State) error = (*NopHooks)(nil).OnStateChanged
	_ func(context.Context, error) error                    = (*NopHooks)(nil).OnError
)

// NewNop creates a new no-op hooks implementation.
//
// Returns:
//   - types.Hooks: Hooks with no-op implementations
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnIterationComplete: h.OnIterationComplete,
		OnStateChanged:      h.OnStateChanged,
		OnError:             h.OnError,
	}
}

// Fill returns a copy of h with every nil callback replaced by its no-op version.
//
// Parameters:
//   - h: User-supplied hooks (may be nil)
//
// Returns:
//   - types.Hooks: Hooks that are safe to call without nil checks
func Fill(h *types.Hooks) types.Hooks {
	out := NewNop()
	if h == nil {
		return out
	}
	if h.OnIterationComplete != nil {
		out.OnIterationComplete = h.OnIterationComplete
	}
	if h.OnStateChanged != nil {
		out.OnStateChanged = h.OnStateChanged
	}
	if h.OnError != nil {
		out.OnError = h.OnError
	}

	return out
}

// OnIterationComplete is a no-op implementation.
func (h *NopHooks) OnIterationComplete(_ context.Context, _ int, _ *mat.Dense) error {
	return nil
}

// OnStateChanged is a no-op implementation.
func (h *NopHooks) OnStateChanged(_ context.Context, _, _ types.State) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(_ context.Context, _ error) error {
	return nil
}
