package collective

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/arloliu/dkmeans/types"
)

// Error kinds carried in result envelopes.
const (
	errKindProtocol = "protocol"
	errKindFailed   = "failed"
)

// envelope is one chunk of a contribution or result on the wire.
//
// Buffers travel as little-endian 8-byte words so every float64 bit pattern,
// NaN and infinities included, survives the round trip.
type envelope struct {
	header

	Off     int    `json:"off"`
	Last    bool   `json:"last"`
	F64     []byte `json:"f64,omitempty"`
	I64     []byte `json:"i64,omitempty"`
	Err     string `json:"err,omitempty"`
	ErrKind string `json:"err_kind,omitempty"`
}

// chunk splits a buffer into envelopes of at most maxElems elements.
//
// At most one of f64 and i64 may be non-nil. At least one envelope is always
// produced so zero-length calls still reach the peer.
func chunk(h header, f64 []float64, i64 []int64, maxElems int) []envelope {
	if maxElems < 1 {
		maxElems = 1
	}

	n := max(len(f64), len(i64))
	if n == 0 {
		return []envelope{{header: h, Last: true}}
	}

	out := make([]envelope, 0, (n+maxElems-1)/maxElems)
	for off := 0; off < n; off += maxElems {
		end := min(off+maxElems, n)
		env := envelope{header: h, Off: off, Last: end == n}
		if f64 != nil {
			env.F64 = encodeFloat64s(f64[off:end])
		} else {
			env.I64 = encodeInt64s(i64[off:end])
		}
		out = append(out, env)
	}

	return out
}

// errorEnvelope builds a terminal result carrying err.
func errorEnvelope(h header, kind string, err error) envelope {
	return envelope{header: h, Last: true, Err: err.Error(), ErrKind: kind}
}

// remoteError converts an error envelope back into a wrapped sentinel.
func (e envelope) remoteError() error {
	if e.Err == "" {
		return nil
	}
	if e.ErrKind == errKindProtocol {
		return fmt.Errorf("%w: %s", types.ErrProtocolViolation, e.Err)
	}

	return fmt.Errorf("%w: %s", types.ErrCollectiveFailed, e.Err)
}

func marshalEnvelope(e envelope) ([]byte, error) {
	return json.Marshal(e)
}

func unmarshalEnvelope(data []byte) (envelope, error) {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return envelope{}, fmt.Errorf("%w: malformed envelope: %w", types.ErrProtocolViolation, err)
	}
	if len(e.F64)%8 != 0 || len(e.I64)%8 != 0 {
		return envelope{}, fmt.Errorf("%w: envelope payload not a multiple of 8 bytes", types.ErrProtocolViolation)
	}

	return e, nil
}

func encodeFloat64s(vals []float64) []byte {
	out := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(v))
	}

	return out
}

// decodeFloat64s writes the words in data into dst starting at off.
func decodeFloat64s(data []byte, dst []float64, off int) error {
	n := len(data) / 8
	if off < 0 || off+n > len(dst) {
		return fmt.Errorf("%w: chunk [%d,%d) outside buffer of %d", types.ErrProtocolViolation, off, off+n, len(dst))
	}
	for i := range n {
		dst[off+i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
	}

	return nil
}

func encodeInt64s(vals []int64) []byte {
	out := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(out[8*i:], uint64(v))
	}

	return out
}

// decodeInt64s writes the words in data into dst starting at off.
func decodeInt64s(data []byte, dst []int64, off int) error {
	n := len(data) / 8
	if off < 0 || off+n > len(dst) {
		return fmt.Errorf("%w: chunk [%d,%d) outside buffer of %d", types.ErrProtocolViolation, off, off+n, len(dst))
	}
	for i := range n {
		dst[off+i] = int64(binary.LittleEndian.Uint64(data[8*i:]))
	}

	return nil
}
