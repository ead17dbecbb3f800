// Package fusion blends the ML model signal with the rule-based
// traditional signal into one number per asset, weighting the ML side by
// its realized information coefficient and degrading it to zero after
// sustained poor performance.
package fusion

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/riskrun/internal/domain"
	"github.com/sawpanic/riskrun/internal/stats"
)

// Config holds the fusion weighting parameters.
type Config struct {
	MLMaxWeight            float64 `yaml:"ml_max_weight"`           // hard 0.5 cap
	DefaultMLWeight        float64 `yaml:"default_ml_weight"`       // 0.2 with no IC history
	DegradationIC          float64 `yaml:"degradation_ic"`          // all recent IC < 0.02 -> weight 0
	DisagreementThreshold  float64 `yaml:"disagreement_threshold"`  // 0.3
	DisagreementConfidence float64 `yaml:"disagreement_confidence"` // 0.5 multiplier
	RollingWindow          int     `yaml:"rolling_window"`          // 20 IC observations
}

// DefaultConfig returns the production fusion parameters.
func DefaultConfig() Config {
	return Config{
		MLMaxWeight:            0.5,
		DefaultMLWeight:        0.2,
		DegradationIC:          0.02,
		DisagreementThreshold:  0.3,
		DisagreementConfidence: 0.5,
		RollingWindow:          20,
	}
}

// Engine fuses the two signal families. The IC history drives the ML
// weight; the fusion history is purely observational.
type Engine struct {
	config Config
	state  *domain.FusionState
}

// NewEngine creates a fusion engine with fresh state.
func NewEngine(config Config) *Engine {
	if config.RollingWindow <= 0 {
		config = DefaultConfig()
	}
	return &Engine{config: config, state: domain.NewFusionState(config.RollingWindow)}
}

// NewEngineWithState restores a fusion engine from persisted state.
func NewEngineWithState(config Config, state *domain.FusionState) *Engine {
	e := NewEngine(config)
	if state != nil {
		if state.MLICHistory == nil {
			state.MLICHistory = domain.NewSeries(e.config.RollingWindow)
		}
		e.state = state
	}
	return e
}

// Result is one fusion decision: the per-asset fused signal plus the
// weights, disagreement and confidence that produced it.
type Result struct {
	Signals           map[string]float64 `json:"signals"`
	MLWeight          float64            `json:"ml_weight"`
	TraditionalWeight float64            `json:"traditional_weight"`
	Disagreement      float64            `json:"disagreement"`
	Confidence        float64            `json:"confidence"`
	Degraded          bool               `json:"degraded"`
	Reason            string             `json:"reason"`
	Timestamp         time.Time          `json:"timestamp"`
}

// Fuse blends the two signals across the asset cross-section. mlIC, when
// present, is recorded into the rolling history before the weight is
// computed. Both inputs are normalized to zero mean and [-1, 1] scale so
// differing native scales cannot bias the blend.
func (e *Engine) Fuse(mlSignal, traditionalSignal map[string]float64, mlIC *float64, benchmarkIC float64, now time.Time) Result {
	if mlIC != nil {
		e.state.MLICHistory.Push(*mlIC)
	}

	mlWeight, degraded, reason := e.mlWeight(benchmarkIC)
	tradWeight := 1.0 - mlWeight

	symbols := sharedSymbols(mlSignal, traditionalSignal)
	disagreement := disagreementRatio(symbols, mlSignal, traditionalSignal)

	confidence := 1.0
	if disagreement > e.config.DisagreementThreshold {
		confidence = e.config.DisagreementConfidence
		log.Warn().Float64("disagreement", disagreement).
			Msg("High signal disagreement, reducing confidence")
	}

	mlNorm := normalize(symbols, mlSignal)
	tradNorm := normalize(symbols, traditionalSignal)

	fused := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		fused[sym] = (mlWeight*mlNorm[sym] + tradWeight*tradNorm[sym]) * confidence
	}

	e.state.FusionHistory = append(e.state.FusionHistory, domain.FusionRecord{
		MLWeight:          mlWeight,
		TraditionalWeight: tradWeight,
		Disagreement:      disagreement,
		Confidence:        confidence,
		Timestamp:         now,
	})

	log.Info().
		Float64("ml_weight", mlWeight).
		Float64("disagreement", disagreement).
		Bool("degraded", degraded).
		Int("assets", len(symbols)).
		Msg("Signals fused")

	return Result{
		Signals:           fused,
		MLWeight:          mlWeight,
		TraditionalWeight: tradWeight,
		Disagreement:      disagreement,
		Confidence:        confidence,
		Degraded:          degraded,
		Reason:            reason,
		Timestamp:         now,
	}
}

// mlWeight computes the ML side's weight. Auto-degradation takes priority
// over everything else; the 0.5 cap is a hard invariant on every path.
func (e *Engine) mlWeight(benchmarkIC float64) (weight float64, degraded bool, reason string) {
	history := e.state.MLICHistory

	if history.Full() && history.AllBelow(e.config.RollingWindow, e.config.DegradationIC) {
		return 0.0, true, fmt.Sprintf("auto-degradation: IC below %.3f for %d consecutive observations",
			e.config.DegradationIC, e.config.RollingWindow)
	}

	if history.Len() == 0 {
		return e.config.DefaultMLWeight, false, "no IC history: default weight"
	}

	if benchmarkIC <= 0 {
		return 0.0, false, "non-positive benchmark IC"
	}

	w := history.Mean() / benchmarkIC
	if w < 0 {
		w = 0.0
	}
	if w > e.config.MLMaxWeight {
		w = e.config.MLMaxWeight
	}
	return w, false, fmt.Sprintf("rolling IC %.4f vs benchmark %.4f", history.Mean(), benchmarkIC)
}

// State exposes the persisted fusion state for the store collaborator.
func (e *Engine) State() *domain.FusionState { return e.state }

// Stats summarizes the observational fusion history.
type Stats struct {
	Fusions           int     `json:"fusions"`
	AvgMLWeight       float64 `json:"avg_ml_weight"`
	AvgDisagreement   float64 `json:"avg_disagreement"`
	DegradationEvents int     `json:"degradation_events"`
	CurrentMLWeight   float64 `json:"current_ml_weight"`
}

// BuildStats reports over the most recent 100 fusion records.
func (e *Engine) BuildStats() Stats {
	history := e.state.FusionHistory
	if len(history) > 100 {
		history = history[len(history)-100:]
	}
	s := Stats{Fusions: len(history)}
	if len(history) == 0 {
		return s
	}
	var wSum, dSum float64
	for _, rec := range history {
		wSum += rec.MLWeight
		dSum += rec.Disagreement
		if rec.MLWeight == 0 {
			s.DegradationEvents++
		}
	}
	s.AvgMLWeight = wSum / float64(len(history))
	s.AvgDisagreement = dSum / float64(len(history))
	s.CurrentMLWeight = history[len(history)-1].MLWeight
	return s
}

// sharedSymbols returns the sorted intersection of both signal universes.
func sharedSymbols(a, b map[string]float64) []string {
	symbols := make([]string, 0, len(a))
	for sym := range a {
		if _, ok := b[sym]; ok {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// disagreementRatio is the fraction of assets where the two raw signals
// point in opposite directions. Computed as a single aggregate ratio
// across the whole cross-section on this date.
func disagreementRatio(symbols []string, ml, trad map[string]float64) float64 {
	if len(symbols) == 0 {
		return 0.0
	}
	mismatches := 0
	for _, sym := range symbols {
		if sign(ml[sym]) != sign(trad[sym]) {
			mismatches++
		}
	}
	return float64(mismatches) / float64(len(symbols))
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// normalize z-scores the cross-section, clips at three standard
// deviations and rescales into [-1, 1]. A flat cross-section maps to 0.
func normalize(symbols []string, signal map[string]float64) map[string]float64 {
	values := make([]float64, len(symbols))
	for i, sym := range symbols {
		values[i] = signal[sym]
	}
	mean := stats.Mean(values)
	sd := stats.StdDev(values)

	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		if sd == 0 {
			out[sym] = 0.0
			continue
		}
		z := (signal[sym] - mean) / sd
		if z > 3 {
			z = 3
		}
		if z < -3 {
			z = -3
		}
		out[sym] = z / 3
	}
	return out
}
