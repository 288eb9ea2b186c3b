package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest("GET /api/items", http.StatusOK, 10*time.Millisecond)
	m.ObserveRequest("GET /api/items", http.StatusOK, 20*time.Millisecond)
	m.ObserveRequest("", http.StatusNotFound, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET /api/items", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("unmatched", "404")))
}

func TestCountersAndGauge(t *testing.T) {
	m := New()
	m.ItemCreated("lost")
	m.EventPublished()
	m.EventDropped()
	done := m.StreamClientConnected()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamClients))
	done()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.itemsCreated.WithLabelValues("lost")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsDropped))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.streamClients))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveFeed(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), "najdeno_feed_result_items_count 1"))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}
