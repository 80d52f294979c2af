package types

import (
	"errors"
	"strings"
)

// Sentinel errors for the dkmeans library.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).
//
// Error Naming Convention:
//   - Use descriptive names with Err prefix
//   - Group by component (Runner, Collective, Source, etc.)
//   - Use consistent messages across similar error types

// Runner errors - Public API errors returned by the Runner.
var (
	// ErrConfiguration is returned for invalid run parameters: wrong argument
	// count, non-integer arguments, or a point count not divisible by the worker
	// count. It is always detected before any I/O or collective call.
	ErrConfiguration = errors.New("configuration error")

	// ErrCommunicatorRequired is returned when the communicator is nil.
	ErrCommunicatorRequired = errors.New("communicator is required")

	// ErrPointSourceRequired is returned when the point source is nil.
	ErrPointSourceRequired = errors.New("point source is required")

	// ErrAlreadyStarted is returned when Run is called twice on the same Runner.
	ErrAlreadyStarted = errors.New("runner already started")

	// ErrPeerFailed is returned on every healthy worker when another worker
	// reported a failure during the startup status exchange.
	ErrPeerFailed = errors.New("peer worker failed")
)

// Source errors - Point data access.
var (
	// ErrIO is returned when point data is missing, unreadable, malformed,
	// or has a line count different from the configured point count.
	ErrIO = errors.New("point data I/O error")
)

// Collective errors - Group synchronization failures. All of them are fatal.
var (
	// ErrProtocolViolation is returned when ranks issue mismatched collective
	// calls (different operation, sequence, or buffer length).
	ErrProtocolViolation = errors.New("collective protocol violation")

	// ErrCollectiveFailed is returned when a collective cannot complete because
	// the transport failed or the operation timed out.
	ErrCollectiveFailed = errors.New("collective operation failed")

	// ErrInvalidRank is returned when a rank is outside [0, size).
	ErrInvalidRank = errors.New("invalid rank")

	// ErrCommunicatorClosed is returned when a collective is issued after Close.
	ErrCommunicatorClosed = errors.New("communicator closed")

	// ErrDivergentReplicas is returned when the replica check finds that two
	// workers hold different centroid matrices.
	ErrDivergentReplicas = errors.New("centroid replicas diverged")
)

// Rank claiming errors.
var (
	// ErrNoAvailableRank is returned when every rank in the group is already claimed.
	ErrNoAvailableRank = errors.New("no available rank in group")

	// ErrRankNotClaimed is returned when releasing a rank that was never claimed.
	ErrRankNotClaimed = errors.New("rank not claimed")
)

// IsNoKeysFoundError checks if an error indicates that no keys were found in NATS KV.
//
// This function handles NATS-specific "no keys found" errors which may come as:
//   - Direct error: "nats: no keys found"
//   - Wrapped error: "failed to list KV keys: nats: no keys found"
//
// Parameters:
//   - err: The error to check
//
// Returns:
//   - bool: true if the error indicates no keys were found, false otherwise
func IsNoKeysFoundError(err error) bool {
	if err == nil {
		return false
	}

	return strings.Contains(err.Error(), "no keys found")
}
