package chrome

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMonitor(devURL, targetID string, onDetach func()) *tabMonitor {
	m := newTabMonitor(devURL, targetID, logrus.New(), onDetach)
	m.interval = 10 * time.Millisecond
	return m
}

func targetListServer(t *testing.T, body *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body.Load().(string)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMonitorKeepsQuietWhileTabListed(t *testing.T) {
	var body atomic.Value
	body.Store(`[{"id":"tab-1"},{"id":"tab-2"}]`)
	srv := targetListServer(t, &body)

	var detached atomic.Bool
	m := testMonitor(srv.URL, "tab-1", func() { detached.Store(true) })
	m.start()

	time.Sleep(100 * time.Millisecond)
	assert.False(t, detached.Load())
	assert.True(t, m.stop(time.Second))
}

func TestMonitorDetectsMissingTab(t *testing.T) {
	var body atomic.Value
	body.Store(`[{"id":"tab-1"}]`)
	srv := targetListServer(t, &body)

	var detached atomic.Bool
	m := testMonitor(srv.URL, "tab-1", func() { detached.Store(true) })
	m.start()

	body.Store(`[{"id":"other"}]`)

	require.Eventually(t, detached.Load, time.Second, 10*time.Millisecond)
	assert.True(t, m.stop(time.Second), "loop must have exited on its own")
}

func TestMonitorDetectsEndpointLoss(t *testing.T) {
	var body atomic.Value
	body.Store(`[{"id":"tab-1"}]`)
	srv := targetListServer(t, &body)

	var detached atomic.Bool
	m := testMonitor(srv.URL, "tab-1", func() { detached.Store(true) })
	m.start()

	srv.Close()

	require.Eventually(t, detached.Load, time.Second, 10*time.Millisecond)
}

func TestMonitorStopIsIdempotentAndBounded(t *testing.T) {
	var body atomic.Value
	body.Store(`[{"id":"tab-1"}]`)
	srv := targetListServer(t, &body)

	m := testMonitor(srv.URL, "tab-1", func() {})
	m.start()

	assert.True(t, m.stop(time.Second))
	assert.True(t, m.stop(time.Second))
}
