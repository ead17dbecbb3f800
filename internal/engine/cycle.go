// Package engine orchestrates one evaluation cycle: correlation, risk,
// re-entry, model lifecycle and signal fusion run in a fixed,
// deterministic order so a backtest replay reproduces live decisions
// byte for byte.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/riskrun/internal/domain"
	"github.com/sawpanic/riskrun/internal/fusion"
	"github.com/sawpanic/riskrun/internal/lifecycle"
	"github.com/sawpanic/riskrun/internal/metrics"
	"github.com/sawpanic/riskrun/internal/risk"
)

// Store persists a completed cycle atomically. Partial cycles are never
// committed: the prior persisted state stays authoritative on failure.
type Store interface {
	SaveCycle(ctx context.Context, result *CycleResult) error
}

// Cache publishes the latest cycle result for downstream consumers.
type Cache interface {
	SetLatest(ctx context.Context, result *CycleResult) error
}

// Alerter delivers risk alerts to the outside world.
type Alerter interface {
	Send(ctx context.Context, alert domain.Alert) error
}

// Deps are the optional external collaborators. Any of them may be nil;
// the engine then skips that side effect.
type Deps struct {
	Store   Store
	Cache   Cache
	Alerter Alerter
	Metrics *metrics.Collector
}

// Engine wires the decision components together.
type Engine struct {
	monitor    *risk.CorrelationMonitor
	controller *risk.Controller
	reentry    *risk.ReEntryManager
	lifecycle  *lifecycle.Manager
	fusion     *fusion.Engine
	deps       Deps
}

// New creates a decision engine from its components.
func New(
	monitor *risk.CorrelationMonitor,
	controller *risk.Controller,
	reentry *risk.ReEntryManager,
	lifecycleMgr *lifecycle.Manager,
	fusionEngine *fusion.Engine,
	deps Deps,
) *Engine {
	return &Engine{
		monitor:    monitor,
		controller: controller,
		reentry:    reentry,
		lifecycle:  lifecycleMgr,
		fusion:     fusionEngine,
		deps:       deps,
	}
}

// CycleInput is everything one evaluation reads. All of it is gathered by
// external collaborators before the cycle starts; the core itself never
// touches network or disk.
type CycleInput struct {
	Now       time.Time         `json:"now"`
	Portfolio *domain.Portfolio `json:"portfolio"`
	RiskState domain.RiskState  `json:"risk_state"`

	// Prices are current marks for the per-asset stop checks.
	Prices map[string]float64 `json:"prices,omitempty"`
	// Returns is the per-asset return history feeding the correlation
	// window.
	Returns map[string][]float64 `json:"returns,omitempty"`
	// Volatility is the recent portfolio volatility series for re-entry.
	Volatility []float64 `json:"volatility,omitempty"`

	// Model is the active predictive model, nil when none is deployed.
	Model        *domain.ModelRecord  `json:"model,omitempty"`
	LiveFeatures map[string][]float64 `json:"live_features,omitempty"`
	// Candidate is a freshly retrained model awaiting the promotion gate.
	Candidate *lifecycle.CandidateMetrics `json:"candidate,omitempty"`

	MLSignal          map[string]float64 `json:"ml_signal,omitempty"`
	TraditionalSignal map[string]float64 `json:"traditional_signal,omitempty"`
	MLIC              *float64           `json:"ml_ic,omitempty"`
	BenchmarkIC       float64            `json:"benchmark_ic,omitempty"`

	// ManualConfirmToken is the external operator confirmation required
	// to leave a level-4 halt.
	ManualConfirmToken bool `json:"manual_confirm_token,omitempty"`
	// AdvanceRecoveryWeek is set by the caller on weekly boundaries to
	// move the recovery ramp forward.
	AdvanceRecoveryWeek bool `json:"advance_recovery_week,omitempty"`
}

// CycleResult is the full output of one evaluation cycle, committed as a
// single unit.
type CycleResult struct {
	Assessment    domain.RiskAssessment `json:"assessment"`
	RiskState     domain.RiskState      `json:"risk_state"`
	Alerts        []domain.Alert        `json:"alerts,omitempty"`
	Decisions     []lifecycle.Decision  `json:"decisions,omitempty"`
	Promoted      bool                  `json:"promoted"`
	Fusion        *fusion.Result        `json:"fusion,omitempty"`
	PositionScale float64               `json:"position_scale"`
	MaxLeverage   float64               `json:"max_leverage"`
	Duration      time.Duration         `json:"duration"`
}

// RunCycle executes one evaluation in the fixed order. Components never
// run concurrently against shared state; only fold generation and
// correlation cells parallelize internally behind their own joins.
func (e *Engine) RunCycle(ctx context.Context, input CycleInput) (*CycleResult, error) {
	if input.Portfolio == nil {
		return nil, fmt.Errorf("cycle input missing portfolio")
	}
	start := time.Now()

	// 1. Correlation. Insufficient history is a graceful degrade: the
	// override is skipped, never an error.
	snapshot, err := e.monitor.Update(input.Returns)
	if err != nil {
		if !errors.Is(err, risk.ErrInsufficientData) {
			return nil, fmt.Errorf("correlation update: %w", err)
		}
		log.Info().Msg("Correlation window incomplete, override skipped")
		snapshot = nil
	}
	alerts := e.monitor.CheckBreaches(snapshot)

	// 2. Risk assessment.
	assessment, state := e.controller.Assess(risk.AssessInput{
		Portfolio: input.Portfolio,
		Snapshot:  snapshot,
		Prices:    input.Prices,
		Now:       input.Now,
	}, input.RiskState)
	assessment.Alerts = alerts

	// 3. Re-entry. Leaving a halt needs both the volatility cooldown and
	// the external confirmation token.
	if state.CurrentLevel == domain.RiskLevelHalt && input.ManualConfirmToken &&
		e.reentry.CanReenter(input.Volatility, input.Portfolio.TargetVolatility) {
		state = e.controller.StepDown(state, domain.RiskLevelNormal,
			"re-entry: volatility cooldown met and manual confirmation received", input.Now)
	}
	if input.AdvanceRecoveryWeek {
		state = e.reentry.AdvanceRecovery(state)
	}
	assessment.RecoveryMode = state.RecoveryMode
	assessment.WeeksInRecovery = state.WeeksInRecovery

	scale := e.controller.PositionScale(state.CurrentLevel)
	if state.RecoveryMode {
		scale *= e.reentry.NextPositionScale(state.WeeksInRecovery)
	}

	result := &CycleResult{
		Assessment:    assessment,
		RiskState:     state,
		Alerts:        alerts,
		PositionScale: scale,
		MaxLeverage:   e.reentry.MaxLeverage(state.RecoveryMode),
	}

	// 4. Model lifecycle.
	if input.Model != nil {
		result.Decisions = e.lifecycle.Evaluate(input.Model, input.LiveFeatures, input.Now)
		if input.Candidate != nil && !input.Model.Retired() {
			promoted, decision := e.lifecycle.EvaluatePromotion(input.Model, *input.Candidate, input.Now)
			result.Promoted = promoted
			result.Decisions = append(result.Decisions, decision)
		}
	}

	// 5. Fusion.
	if input.MLSignal != nil && input.TraditionalSignal != nil {
		fr := e.fusion.Fuse(input.MLSignal, input.TraditionalSignal, input.MLIC, input.BenchmarkIC, input.Now)
		result.Fusion = &fr
	}

	result.Duration = time.Since(start)
	e.observe(result)

	// 6. Side effects, in order: persist (atomic), publish, alert.
	if e.deps.Store != nil {
		if err := e.deps.Store.SaveCycle(ctx, result); err != nil {
			return nil, fmt.Errorf("persist cycle: %w", err)
		}
	}
	if e.deps.Cache != nil {
		if err := e.deps.Cache.SetLatest(ctx, result); err != nil {
			log.Warn().Err(err).Msg("Failed to publish latest cycle to cache")
		}
	}
	if e.deps.Alerter != nil {
		for _, alert := range alerts {
			if err := e.deps.Alerter.Send(ctx, alert); err != nil {
				log.Warn().Err(err).Str("severity", string(alert.Severity)).
					Msg("Alert delivery failed")
			}
		}
	}

	log.Info().
		Int("level", int(result.Assessment.Level)).
		Float64("position_scale", result.PositionScale).
		Int("decisions", len(result.Decisions)).
		Dur("duration", result.Duration).
		Msg("Evaluation cycle complete")
	return result, nil
}

func (e *Engine) observe(result *CycleResult) {
	m := e.deps.Metrics
	if m == nil {
		return
	}
	m.ObserveRisk(int(result.Assessment.Level), result.Assessment.Drawdown)
	m.ObserveCycle(result.Duration.Seconds())
	for _, alert := range result.Alerts {
		m.IncAlert(string(alert.Severity))
	}
	for _, stop := range result.Assessment.AssetStops {
		m.IncAssetStop(string(stop.Action))
	}
	for _, d := range result.Decisions {
		switch d.Action {
		case lifecycle.ActionRetrain:
			m.IncRetrain()
		case lifecycle.ActionRetire:
			m.IncRetirement()
		}
	}
	if result.Fusion != nil {
		m.ObserveFusion(result.Fusion.MLWeight, result.Fusion.Disagreement, result.Fusion.Degraded)
	}
}
