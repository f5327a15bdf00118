package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	ConnectionsTotal.Inc()
	MessagesSent.Inc()
	BytesSent.Add(42)
	StatusesSent.WithLabelValues("warning").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	for _, name := range []string{
		"foxbridge_connections_total",
		"foxbridge_connections_active",
		"foxbridge_messages_sent_total",
		"foxbridge_bytes_sent_total",
		`foxbridge_statuses_sent_total{level="warning"}`,
	} {
		assert.Contains(t, string(body), name)
	}
}
