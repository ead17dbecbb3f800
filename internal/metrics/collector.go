// Package metrics exports the engine's decision telemetry to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the engine's Prometheus instruments.
type Collector struct {
	riskLevel        prometheus.Gauge
	drawdown         prometheus.Gauge
	mlWeight         prometheus.Gauge
	disagreement     prometheus.Gauge
	cyclesTotal      prometheus.Counter
	cycleSeconds     prometheus.Histogram
	retrainsTotal    prometheus.Counter
	retirementsTotal prometheus.Counter
	degradations     prometheus.Counter
	alertsTotal      *prometheus.CounterVec
	assetStopsTotal  *prometheus.CounterVec
}

// NewCollector builds and registers the instruments on the registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		riskLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskrun_risk_level",
			Help: "Current portfolio risk level (0-4)",
		}),
		drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskrun_drawdown",
			Help: "Current portfolio drawdown from peak NAV",
		}),
		mlWeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskrun_fusion_ml_weight",
			Help: "ML signal weight in the last fusion decision",
		}),
		disagreement: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskrun_fusion_disagreement",
			Help: "Signal disagreement ratio in the last fusion decision",
		}),
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskrun_cycles_total",
			Help: "Evaluation cycles completed",
		}),
		cycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskrun_cycle_duration_seconds",
			Help:    "Evaluation cycle duration",
			Buckets: prometheus.DefBuckets,
		}),
		retrainsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskrun_retrains_total",
			Help: "Retrain triggers fired",
		}),
		retirementsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskrun_retirements_total",
			Help: "Models retired",
		}),
		degradations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskrun_fusion_degradations_total",
			Help: "Fusion auto-degradation events",
		}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskrun_alerts_total",
			Help: "Risk alerts by severity",
		}, []string{"severity"}),
		assetStopsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskrun_asset_stops_total",
			Help: "Per-asset stop signals by action",
		}, []string{"action"}),
	}

	reg.MustRegister(
		c.riskLevel, c.drawdown, c.mlWeight, c.disagreement,
		c.cyclesTotal, c.cycleSeconds, c.retrainsTotal,
		c.retirementsTotal, c.degradations, c.alertsTotal, c.assetStopsTotal,
	)
	return c
}

func (c *Collector) ObserveRisk(level int, drawdown float64) {
	c.riskLevel.Set(float64(level))
	c.drawdown.Set(drawdown)
}

func (c *Collector) ObserveFusion(mlWeight, disagreement float64, degraded bool) {
	c.mlWeight.Set(mlWeight)
	c.disagreement.Set(disagreement)
	if degraded {
		c.degradations.Inc()
	}
}

func (c *Collector) ObserveCycle(seconds float64) {
	c.cyclesTotal.Inc()
	c.cycleSeconds.Observe(seconds)
}

func (c *Collector) IncRetrain() { c.retrainsTotal.Inc() }

func (c *Collector) IncRetirement() { c.retirementsTotal.Inc() }

func (c *Collector) IncAlert(severity string) { c.alertsTotal.WithLabelValues(severity).Inc() }

func (c *Collector) IncAssetStop(action string) { c.assetStopsTotal.WithLabelValues(action).Inc() }
