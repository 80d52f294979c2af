package dkmeans

import "github.com/arloliu/dkmeans/types"

// Sentinel errors re-exported from the types package.
//
// Check them with errors.Is; every error returned by the library wraps one of these.
var (
	ErrConfiguration        = types.ErrConfiguration
	ErrCommunicatorRequired = types.ErrCommunicatorRequired
	ErrPointSourceRequired  = types.ErrPointSourceRequired
	ErrAlreadyStarted       = types.ErrAlreadyStarted
	ErrPeerFailed           = types.ErrPeerFailed
	ErrIO                   = types.ErrIO
	ErrProtocolViolation    = types.ErrProtocolViolation
	ErrCollectiveFailed     = types.ErrCollectiveFailed
	ErrInvalidRank          = types.ErrInvalidRank
	ErrCommunicatorClosed   = types.ErrCommunicatorClosed
	ErrDivergentReplicas    = types.ErrDivergentReplicas
	ErrNoAvailableRank      = types.ErrNoAvailableRank
)
