package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllMetrics(t *testing.T) {
	m := New()

	m.ConnectionsActive.Set(3)
	m.EventsTotal.WithLabelValues("ping").Inc()
	m.DeliveriesTotal.WithLabelValues("message_received", "delivered").Inc()
	m.EventErrorsTotal.WithLabelValues("send_message", "bad_request").Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "realtime_connections_active 3")
	assert.Contains(t, body, `realtime_events_total{event="ping"} 1`)
	assert.Contains(t, body, `realtime_deliveries_total{event="message_received",result="delivered"} 1`)
}
