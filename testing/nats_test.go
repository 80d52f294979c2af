package testing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartEmbeddedNATS(t *testing.T) {
	ns, nc := StartEmbeddedNATS(t)

	require.NotNil(t, ns)
	require.NotNil(t, nc)
	require.True(t, nc.IsConnected())
	require.True(t, ns.ReadyForConnections(1*time.Second))

	js, err := nc.JetStream()
	require.NoError(t, err)
	require.NotNil(t, js)
}

func TestStartEmbeddedNATS_ParallelTests(t *testing.T) {
	t.Parallel()

	for range 3 {
		t.Run("parallel", func(t *testing.T) {
			t.Parallel()

			_, nc := StartEmbeddedNATS(t)
			require.True(t, nc.IsConnected())
		})
	}
}

func TestConnect(t *testing.T) {
	ns, nc := StartEmbeddedNATS(t)
	other := Connect(t, ns)

	sub, err := nc.SubscribeSync("probe")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	require.NoError(t, other.Publish("probe", []byte("hello")))
	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "hello", string(msg.Data))
}
