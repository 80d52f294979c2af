package dkmeans

import "github.com/arloliu/dkmeans/types"

// Re-export types from the internal types package.
//
// This file provides a stable public API for the library's core types and
// interfaces. It uses type aliases to re-export definitions from the `types`
// subpackage, which contains the actual declarations.
//
// This pattern solves the "import cycle" problem by allowing internal packages
// to depend on `types` without depending on the root `dkmeans` package, while
// still providing a convenient `dkmeans.State`, `dkmeans.Logger`, etc. for users.
type (
	State         = types.State
	Partition     = types.Partition
	WorkerContext = types.WorkerContext
)

// Re-export interfaces from the internal types package for convenience.
type (
	Communicator     = types.Communicator
	PointSource      = types.PointSource
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
	Hooks            = types.Hooks
)

// Re-export State constants from the internal types package.
const (
	StateInit         = types.StateInit
	StatePartitioning = types.StatePartitioning
	StateLoading      = types.StateLoading
	StateSeeding      = types.StateSeeding
	StateIterating    = types.StateIterating
	StateReporting    = types.StateReporting
	StateDone         = types.StateDone
	StateFailed       = types.StateFailed
)
