package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.MessageAppended()
	m.EventPublished("new_msg")
	m.EventDelivered("new_msg")
	m.EventDelivered("new_msg")
	m.EventDropped("chat_seen")
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesAppended))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsDelivered.WithLabelValues("new_msg")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.liveSessions))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chatsphere_messages_appended_total 1")
	assert.Contains(t, string(body), `chatsphere_events_dropped_total{event="chat_seen"} 1`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MessageAppended()
		m.EventDelivered("new_msg")
		m.SessionOpened()
		m.RateLimited()
	})
}
