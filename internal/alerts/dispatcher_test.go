package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/riskrun/internal/domain"
)

func TestSendWithoutWebhookSucceeds(t *testing.T) {
	d := NewDispatcher("", 30)
	err := d.Send(context.Background(), domain.Alert{
		Severity: domain.SeverityWarning,
		Message:  "pairwise correlation above 0.7",
	})
	assert.NoError(t, err, "log-only mode never fails the cycle")
}

func TestSendPostsAlertJSON(t *testing.T) {
	var got domain.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 600)
	alert := domain.Alert{
		Severity: domain.SeverityLevel2,
		Message:  "all pairwise correlations above 0.8",
		AvgCorr:  0.91,
	}
	require.NoError(t, d.Send(context.Background(), alert))
	assert.Equal(t, alert, got)
}

func TestSendRateLimitDropsSilently(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// One token per minute, burst of one: the second send drops.
	d := NewDispatcher(srv.URL, 1)
	for i := 0; i < 5; i++ {
		assert.NoError(t, d.Send(context.Background(), domain.Alert{Severity: domain.SeverityWarning}))
	}
	assert.Equal(t, int64(1), hits.Load())
}

func TestSendServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 600)
	err := d.Send(context.Background(), domain.Alert{Severity: domain.SeverityLevel1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deliver alert")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 60_000_000)
	for i := 0; i < 3; i++ {
		assert.Error(t, d.Send(context.Background(), domain.Alert{Severity: domain.SeverityLevel1}))
	}

	// The breaker is open: further sends fail fast without reaching the
	// endpoint.
	err := d.Send(context.Background(), domain.Alert{Severity: domain.SeverityLevel1})
	require.Error(t, err)
	assert.Equal(t, int64(3), hits.Load())
}
