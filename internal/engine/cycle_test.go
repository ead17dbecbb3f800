package engine

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/riskrun/internal/domain"
	"github.com/sawpanic/riskrun/internal/fusion"
	"github.com/sawpanic/riskrun/internal/lifecycle"
	"github.com/sawpanic/riskrun/internal/metrics"
	"github.com/sawpanic/riskrun/internal/risk"
)

type mockStore struct {
	saved  []*CycleResult
	failOn error
}

func (m *mockStore) SaveCycle(_ context.Context, result *CycleResult) error {
	if m.failOn != nil {
		return m.failOn
	}
	m.saved = append(m.saved, result)
	return nil
}

type mockCache struct {
	latest *CycleResult
	failOn error
}

func (m *mockCache) SetLatest(_ context.Context, result *CycleResult) error {
	if m.failOn != nil {
		return m.failOn
	}
	m.latest = result
	return nil
}

type mockAlerter struct {
	sent []domain.Alert
}

func (m *mockAlerter) Send(_ context.Context, alert domain.Alert) error {
	m.sent = append(m.sent, alert)
	return nil
}

func newTestEngine(deps Deps) *Engine {
	monitor := risk.NewCorrelationMonitor(risk.DefaultCorrelationConfig())
	return New(
		monitor,
		risk.NewController(risk.DefaultControllerConfig(), monitor),
		risk.NewReEntryManager(risk.DefaultReEntryConfig()),
		lifecycle.NewManager(lifecycle.DefaultConfig()),
		fusion.NewEngine(fusion.DefaultConfig()),
		deps,
	)
}

func portfolioAtDrawdown(dd float64) *domain.Portfolio {
	return &domain.Portfolio{
		NAV:              (1 - dd) * 100000,
		PeakNAV:          100000,
		TargetVolatility: 0.12,
	}
}

var cycleNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func TestRunCycleRequiresPortfolio(t *testing.T) {
	e := newTestEngine(Deps{})
	_, err := e.RunCycle(context.Background(), CycleInput{Now: cycleNow})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "portfolio")
}

func TestRunCycleSevereDrawdownHalts(t *testing.T) {
	store := &mockStore{}
	alerter := &mockAlerter{}
	e := newTestEngine(Deps{Store: store, Alerter: alerter})

	result, err := e.RunCycle(context.Background(), CycleInput{
		Now:       cycleNow,
		Portfolio: portfolioAtDrawdown(0.16),
		RiskState: domain.RiskState{CurrentLevel: domain.RiskLevelNormal},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RiskLevelHalt, result.RiskState.CurrentLevel)
	assert.Equal(t, 0.0, result.PositionScale)
	assert.True(t, result.Assessment.ManualConfirm)
	assert.Contains(t, result.Assessment.Actions, domain.ActionLiquidateNonSafeHaven)

	require.Len(t, store.saved, 1, "completed cycle persists exactly once")
	assert.Equal(t, result, store.saved[0])
}

func TestRunCycleInsufficientCorrelationHistoryDegrades(t *testing.T) {
	e := newTestEngine(Deps{})

	// 30 observations against the 60-day window: the override is skipped,
	// never surfaced as a cycle error.
	returns := map[string][]float64{
		"SPY": make([]float64, 30),
		"QQQ": make([]float64, 30),
	}
	result, err := e.RunCycle(context.Background(), CycleInput{
		Now:       cycleNow,
		Portfolio: portfolioAtDrawdown(0.0),
		Returns:   returns,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLevelNormal, result.RiskState.CurrentLevel)
	assert.Empty(t, result.Alerts)
}

func TestRunCycleCorrelationOverrideForcesReduce(t *testing.T) {
	alerter := &mockAlerter{}
	e := newTestEngine(Deps{Alerter: alerter})

	// Identical return series correlate at 1.0, tripping the extreme
	// threshold with no drawdown at all.
	series := make([]float64, 60)
	for i := range series {
		series[i] = math.Sin(float64(i) / 4)
	}
	returns := map[string][]float64{"SPY": series, "QQQ": series, "IWM": series}

	result, err := e.RunCycle(context.Background(), CycleInput{
		Now:       cycleNow,
		Portfolio: portfolioAtDrawdown(0.0),
		RiskState: domain.RiskState{CurrentLevel: domain.RiskLevelNormal},
		Returns:   returns,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RiskLevelReduce, result.RiskState.CurrentLevel)
	assert.True(t, result.Assessment.CorrelationForce)
	require.NotEmpty(t, result.Alerts)
	assert.Equal(t, result.Alerts, alerter.sent, "every alert delivered in order")
}

func TestRunCycleReEntryStepDown(t *testing.T) {
	e := newTestEngine(Deps{})

	lowVol := []float64{0.08, 0.09, 0.07, 0.10, 0.085}
	input := CycleInput{
		Now:        cycleNow,
		Portfolio:  portfolioAtDrawdown(0.0),
		RiskState:  domain.RiskState{CurrentLevel: domain.RiskLevelHalt},
		Volatility: lowVol,
	}

	// Without the token the halt holds no matter how quiet the market is.
	result, err := e.RunCycle(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLevelHalt, result.RiskState.CurrentLevel)

	input.ManualConfirmToken = true
	result, err = e.RunCycle(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, domain.RiskLevelNormal, result.RiskState.CurrentLevel)
	assert.True(t, result.RiskState.RecoveryMode)
	assert.Equal(t, 0, result.RiskState.WeeksInRecovery)
	assert.InDelta(t, 0.25, result.PositionScale, 1e-12, "recovery starts at a quarter size")
	assert.Equal(t, 1.0, result.MaxLeverage)
}

func TestRunCycleReEntryBlockedByVolatility(t *testing.T) {
	e := newTestEngine(Deps{})

	// One observation at target breaks the consecutive run.
	vol := []float64{0.08, 0.09, 0.12, 0.10, 0.085}
	result, err := e.RunCycle(context.Background(), CycleInput{
		Now:                cycleNow,
		Portfolio:          portfolioAtDrawdown(0.0),
		RiskState:          domain.RiskState{CurrentLevel: domain.RiskLevelHalt},
		Volatility:         vol,
		ManualConfirmToken: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLevelHalt, result.RiskState.CurrentLevel)
}

func TestRunCycleRecoveryRampAdvances(t *testing.T) {
	e := newTestEngine(Deps{})

	state := domain.RiskState{
		CurrentLevel: domain.RiskLevelNormal,
		RecoveryMode: true,
	}
	scales := []float64{0.50, 0.75, 1.00}
	for _, want := range scales {
		result, err := e.RunCycle(context.Background(), CycleInput{
			Now:                 cycleNow,
			Portfolio:           portfolioAtDrawdown(0.0),
			RiskState:           state,
			AdvanceRecoveryWeek: true,
		})
		require.NoError(t, err)
		assert.InDelta(t, want, result.PositionScale, 1e-12)
		state = result.RiskState
	}

	// Week four ends recovery and restores normal leverage.
	result, err := e.RunCycle(context.Background(), CycleInput{
		Now:                 cycleNow,
		Portfolio:           portfolioAtDrawdown(0.0),
		RiskState:           state,
		AdvanceRecoveryWeek: true,
	})
	require.NoError(t, err)
	assert.False(t, result.RiskState.RecoveryMode)
	assert.Equal(t, 1.0, result.PositionScale)
	assert.Equal(t, 1.5, result.MaxLeverage)
}

func TestRunCycleLifecycleAndFusion(t *testing.T) {
	e := newTestEngine(Deps{})

	model := &domain.ModelRecord{
		ModelID:      "model-a",
		TrainingDate: cycleNow.AddDate(0, 0, -5),
		Status:       domain.ModelActive,
		ICHistory:    domain.SeriesFrom(90, []float64{0.04, 0.05, 0.03}),
	}
	mlIC := 0.04
	result, err := e.RunCycle(context.Background(), CycleInput{
		Now:               cycleNow,
		Portfolio:         portfolioAtDrawdown(0.0),
		Model:             model,
		MLSignal:          map[string]float64{"SPY": 0.6, "QQQ": -0.2},
		TraditionalSignal: map[string]float64{"SPY": 0.4, "QQQ": -0.1},
		MLIC:              &mlIC,
		BenchmarkIC:       0.05,
	})
	require.NoError(t, err)

	assert.Len(t, result.Decisions, 5, "one decision per lifecycle trigger")
	for _, d := range result.Decisions {
		assert.Equal(t, "model-a", d.ModelID)
	}
	require.NotNil(t, result.Fusion)
	assert.Len(t, result.Fusion.Signals, 2)
	assert.False(t, result.Promoted)
}

func TestRunCycleSkipsModelAndFusionWhenAbsent(t *testing.T) {
	e := newTestEngine(Deps{})

	result, err := e.RunCycle(context.Background(), CycleInput{
		Now:       cycleNow,
		Portfolio: portfolioAtDrawdown(0.02),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Decisions)
	assert.Nil(t, result.Fusion)
}

func TestRunCycleStoreFailureIsFatal(t *testing.T) {
	store := &mockStore{failOn: fmt.Errorf("connection refused")}
	e := newTestEngine(Deps{Store: store})

	_, err := e.RunCycle(context.Background(), CycleInput{
		Now:       cycleNow,
		Portfolio: portfolioAtDrawdown(0.0),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist cycle")
}

func TestRunCycleCacheFailureIsNot(t *testing.T) {
	store := &mockStore{}
	cache := &mockCache{failOn: fmt.Errorf("redis down")}
	e := newTestEngine(Deps{Store: store, Cache: cache})

	result, err := e.RunCycle(context.Background(), CycleInput{
		Now:       cycleNow,
		Portfolio: portfolioAtDrawdown(0.0),
	})
	require.NoError(t, err, "cache publish is best-effort")
	assert.NotNil(t, result)
	assert.Len(t, store.saved, 1)
}

func TestRunCycleObservesMetrics(t *testing.T) {
	collector := metrics.NewCollector(prometheus.NewRegistry())
	e := newTestEngine(Deps{Metrics: collector})

	result, err := e.RunCycle(context.Background(), CycleInput{
		Now:       cycleNow,
		Portfolio: portfolioAtDrawdown(0.16),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLevelHalt, result.RiskState.CurrentLevel)
}

func TestRunCycleLevelNeverStepsDownOnRecoveryAlone(t *testing.T) {
	e := newTestEngine(Deps{})

	// Drawdown back at 2% while the state machine sits at level 3: the
	// level holds until the explicit re-entry path runs.
	result, err := e.RunCycle(context.Background(), CycleInput{
		Now:       cycleNow,
		Portfolio: portfolioAtDrawdown(0.02),
		RiskState: domain.RiskState{CurrentLevel: domain.RiskLevelDefensive},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLevelDefensive, result.RiskState.CurrentLevel)
	assert.Equal(t, 0.5, result.PositionScale)
}
