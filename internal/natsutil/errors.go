package natsutil

import (
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// transient lists NATS errors that clear up once peers or the server are reachable.
var transient = []error{
	nats.ErrTimeout,
	nats.ErrNoResponders,
	nats.ErrNoServers,
	nats.ErrDisconnected,
	nats.ErrConnectionClosed,
	jetstream.ErrNoStreamResponse,
}

// IsConnectivityError reports whether err means "nobody answered yet" rather
// than a real failure.
//
// A worker joining a group retries these until its join timeout: the
// coordinator may simply not have subscribed yet, which surfaces as
// ErrNoResponders.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	for _, target := range transient {
		if errors.Is(err, target) {
			return true
		}
	}

	msg := err.Error()

	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "i/o timeout")
}
