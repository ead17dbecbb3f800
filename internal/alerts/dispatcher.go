// Package alerts delivers risk alerts to an external webhook. Delivery is
// rate limited and wrapped in a circuit breaker so a dead alert endpoint
// can never stall or fail an evaluation cycle.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/riskrun/internal/domain"
)

// Dispatcher sends alerts over HTTP. With no webhook configured it logs
// them and succeeds, matching the original system's degraded mode.
type Dispatcher struct {
	webhookURL string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
}

// NewDispatcher creates an alert dispatcher. ratePerMinute bounds
// outbound deliveries; bursts of one.
func NewDispatcher(webhookURL string, ratePerMinute float64) *Dispatcher {
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "alert-webhook",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Alert webhook circuit state changed")
		},
	})
	return &Dispatcher{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		breaker:    breaker,
		limiter:    rate.NewLimiter(rate.Limit(ratePerMinute/60.0), 1),
	}
}

// Send delivers one alert. Rate-limit overflow drops the alert with a log
// line rather than blocking the cycle.
func (d *Dispatcher) Send(ctx context.Context, alert domain.Alert) error {
	log.WithLevel(zerologLevel(alert.Severity)).
		Str("severity", string(alert.Severity)).
		Msg(alert.Message)

	if d.webhookURL == "" {
		return nil
	}
	if !d.limiter.Allow() {
		log.Warn().Str("severity", string(alert.Severity)).
			Msg("Alert rate limit exceeded, dropping webhook delivery")
		return nil
	}

	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.post(ctx, alert)
	})
	if err != nil {
		return fmt.Errorf("deliver alert: %w", err)
	}
	return nil
}

func (d *Dispatcher) post(ctx context.Context, alert domain.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func zerologLevel(severity domain.AlertSeverity) zerolog.Level {
	if severity == domain.SeverityLevel2 {
		return zerolog.ErrorLevel
	}
	return zerolog.WarnLevel
}
