package monitoring

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestServerServesHealthAndMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.IncURL("completed")
	m.IncLot("success")
	m.ObserveFetch("lots_page", 2*time.Second)

	srv := NewServer(":0", registry, zap.NewNop())
	handler := srv.httpServer.Handler

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, 200, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `scraper_urls_processed_total{outcome="completed"} 1`)
	assert.Contains(t, body, `scraper_lots_scraped_total{parse_status="success"} 1`)
	assert.Contains(t, body, `scraper_fetch_duration_seconds_count{kind="lots_page"} 1`)
}

func TestNewMetricsRegistersOnIsolatedRegistry(t *testing.T) {
	// Two constructions must not collide: each run gets its own registry.
	NewMetrics(prometheus.NewRegistry())
	assert.NotPanics(t, func() { NewMetrics(prometheus.NewRegistry()) })
}
