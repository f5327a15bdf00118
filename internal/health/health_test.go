package health

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerServeHTTP(t *testing.T) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	require.NoError(t, err)

	tests := []struct {
		name             string
		h                *handler
		wantConnections  float64
		wantProcessStats bool
	}{
		{
			name: "reports process stats",
			h: &handler{
				stats: Stats{
					ConnectionCount: func() int { return 3 },
					MaxConnections:  10,
				},
				proc:      proc,
				startTime: time.Now().Add(-2 * time.Second),
			},
			wantConnections:  3,
			wantProcessStats: true,
		},
		{
			name: "degrades without a process handle",
			h: &handler{
				stats: Stats{
					ConnectionCount: func() int { return 0 },
					MaxConnections:  10,
				},
				proc:      nil,
				startTime: time.Now(),
			},
			wantConnections:  0,
			wantProcessStats: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

			require.Equal(t, 200, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

			assert.Equal(t, "healthy", body["status"])
			assert.GreaterOrEqual(t, body["uptime_seconds"].(float64), 0.0)

			conns := body["connections"].(map[string]any)
			assert.Equal(t, tt.wantConnections, conns["current"])
			assert.Equal(t, float64(10), conns["max"])

			if tt.wantProcessStats {
				assert.Contains(t, body, "memory_mb")
				assert.Contains(t, body, "cpu_percent")
			} else {
				assert.NotContains(t, body, "memory_mb")
				assert.NotContains(t, body, "cpu_percent")
			}
		})
	}
}

func TestNewHandlerInspectsCurrentProcess(t *testing.T) {
	h := NewHandler(Stats{
		ConnectionCount: func() int { return 1 },
		MaxConnections:  5,
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	require.Equal(t, 200, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "memory_mb", "the running test process is always inspectable")
}
