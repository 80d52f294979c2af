// Package testing provides test utilities for dkmeans.
//
// It offers embedded NATS servers for exercising the NATS collective transport
// and rank claiming without an external deployment. It follows Go's convention
// of providing testing utilities in a dedicated package (similar to net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: Single NATS server with JetStream
//   - Connect: Extra client connection, one per simulated worker process
//
// Example usage:
//
//	import (
//	    "testing"
//	    dktest "github.com/arloliu/dkmeans/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    ns, nc := dktest.StartEmbeddedNATS(t)
//	    worker := dktest.Connect(t, ns)
//	    // ...
//	}
package testing
