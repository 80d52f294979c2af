package testing

import (
	"testing"
	"time"

	"github.com/arloliu/dkmeans/internal/natsutil"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// StartEmbeddedNATS starts an embedded NATS server with JetStream enabled for testing.
//
// The server listens on a random port and stores JetStream data in a temporary
// directory. Server and connection are shut down through t.Cleanup.
//
// Parameters:
//   - t: Testing context for logging and cleanup
//
// Returns:
//   - *server.Server: The embedded NATS server instance
//   - *nats.Conn: Connected NATS client (closed automatically on test completion)
//
// Example:
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := dktest.StartEmbeddedNATS(t)
//	    // Use nc for your tests
//	}
func StartEmbeddedNATS(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	ns, nc, err := natsutil.StartEmbedded(natsutil.EmbeddedOptions{
		Port:         -1,
		JetStream:    true,
		StoreDir:     t.TempDir(),
		ReadyTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to start embedded NATS server: %v", err)
	}

	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	return ns, nc
}

// Connect opens an additional client connection to ns.
//
// Each simulated worker process should use its own connection so that
// per-connection ordering matches a real multi-process deployment.
//
// Parameters:
//   - t: Testing context for logging and cleanup
//   - ns: Server started by StartEmbeddedNATS
//
// Returns:
//   - *nats.Conn: Connected client (closed automatically on test completion)
func Connect(t *testing.T, ns *server.Server) *nats.Conn {
	t.Helper()

	nc, err := nats.Connect(ns.ClientURL(), nats.Timeout(2*time.Second))
	if err != nil {
		t.Fatalf("Failed to connect to embedded NATS server: %v", err)
	}
	t.Cleanup(nc.Close)

	return nc
}
