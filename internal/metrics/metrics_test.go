package metrics

import (
	"context"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/lordbasex/go-radius-client/radiusclient"
)

func TestCollectorExposesServerCount(t *testing.T) {
	client, err := radiusclient.NewClient(radiusclient.DefaultSettings(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Destroy(context.Background()) })

	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:1812")
	require.NoError(t, err)
	require.NoError(t, client.AddServer(radiusclient.ServerSettings{
		Addr:   addr,
		Secret: []byte("s"),
		Policy: radiusclient.DefaultRetransmitPolicy(),
	}))

	collector := NewCollector(client, prometheus.Labels{"instance": "test"})

	count := testutil.CollectAndCount(collector)
	require.Equal(t, 7, count, "collector must emit exactly the metrics it describes")
}
