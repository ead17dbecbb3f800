package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/riskrun/internal/domain"
)

var testNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func newModel(icValues []float64, lastRetrain time.Time) *domain.ModelRecord {
	return &domain.ModelRecord{
		ModelID:         "xgb-momentum-v3",
		Status:          domain.ModelActive,
		LastRetrainDate: lastRetrain,
		ICHistory:       domain.SeriesFrom(60, icValues),
	}
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func findDecision(decisions []Decision, trigger TriggerType) (Decision, bool) {
	for _, d := range decisions {
		if d.Trigger == trigger {
			return d, true
		}
	}
	return Decision{}, false
}

func TestEvaluateEmitsOneDecisionPerTrigger(t *testing.T) {
	m := NewManager(DefaultConfig())
	rec := newModel(repeat(0.05, 20), testNow.AddDate(0, 0, -10))

	decisions := m.Evaluate(rec, nil, testNow)
	require.Len(t, decisions, 5, "every trigger evaluation is audited")

	for _, d := range decisions {
		assert.NotEmpty(t, d.ID)
		assert.Equal(t, rec.ModelID, d.ModelID)
		assert.NotEmpty(t, d.Reason, "every decision carries a reason")
		assert.NotNil(t, d.Evidence)
		assert.Equal(t, testNow, d.Timestamp)
	}
}

func TestScheduledRetrain(t *testing.T) {
	m := NewManager(DefaultConfig())

	stale := newModel(repeat(0.05, 20), testNow.AddDate(0, 0, -31))
	d, ok := findDecision(m.Evaluate(stale, nil, testNow), TriggerScheduledRetrain)
	require.True(t, ok)
	assert.Equal(t, ActionRetrain, d.Action)
	assert.Equal(t, 31.0, d.Evidence["days_since_retrain"])

	fresh := newModel(repeat(0.05, 20), testNow.AddDate(0, 0, -5))
	d, _ = findDecision(m.Evaluate(fresh, nil, testNow), TriggerScheduledRetrain)
	assert.Equal(t, ActionNone, d.Action)

	never := newModel(repeat(0.05, 20), time.Time{})
	d, _ = findDecision(m.Evaluate(never, nil, testNow), TriggerScheduledRetrain)
	assert.Equal(t, ActionRetrain, d.Action, "untrained model is past due")
}

func TestPerformanceRetrain(t *testing.T) {
	m := NewManager(DefaultConfig())

	weak := newModel(repeat(0.01, 10), testNow.AddDate(0, 0, -5))
	d, ok := findDecision(m.Evaluate(weak, nil, testNow), TriggerPerformanceRetrain)
	require.True(t, ok)
	assert.Equal(t, ActionRetrain, d.Action)

	// A single healthy observation inside the window resets the streak.
	mixed := newModel(append(repeat(0.01, 5), append([]float64{0.05}, repeat(0.01, 4)...)...), testNow.AddDate(0, 0, -5))
	d, _ = findDecision(m.Evaluate(mixed, nil, testNow), TriggerPerformanceRetrain)
	assert.Equal(t, ActionNone, d.Action)

	short := newModel(repeat(0.01, 5), testNow.AddDate(0, 0, -5))
	d, _ = findDecision(m.Evaluate(short, nil, testNow), TriggerPerformanceRetrain)
	assert.Equal(t, ActionNone, d.Action, "insufficient history never triggers")
}

func TestDriftTrigger(t *testing.T) {
	m := NewManager(DefaultConfig())

	training := map[string][]float64{
		"mom_12m": {1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	}

	tests := []struct {
		name     string
		live     []float64
		expected Action
	}{
		{"no drift", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, ActionNone},
		{"severe drift retrains", []float64{101, 102, 103, 104, 105, 106, 107, 108, 109, 110}, ActionRetrain},
		{"moderate drift warns only", []float64{2.5, 3.5, 4.5, 5.5, 6.5, 7.5, 8.5, 9.5, 10.5, 11.5}, ActionWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newModel(repeat(0.05, 20), testNow.AddDate(0, 0, -5))
			rec.TrainingFeatures = training
			d, ok := findDecision(m.Evaluate(rec, map[string][]float64{"mom_12m": tt.live}, testNow), TriggerDriftRetrain)
			require.True(t, ok)
			assert.Equal(t, tt.expected, d.Action)
			assert.Contains(t, d.Evidence, "max_ks")
		})
	}
}

func TestRetirementIsTerminal(t *testing.T) {
	m := NewManager(DefaultConfig())

	rec := newModel(repeat(-0.01, 30), testNow.AddDate(0, 0, -5))
	decisions := m.Evaluate(rec, nil, testNow)

	d, ok := findDecision(decisions, TriggerRetirement)
	require.True(t, ok)
	assert.Equal(t, ActionRetire, d.Action)
	assert.Equal(t, domain.ModelRetired, rec.Status)

	// A retired model is never reconsidered.
	assert.Empty(t, m.Evaluate(rec, nil, testNow.AddDate(0, 0, 1)))
}

func TestRetirementNeedsFullStreak(t *testing.T) {
	m := NewManager(DefaultConfig())

	// 29 negative observations after one positive: no retirement.
	rec := newModel(append([]float64{0.05}, repeat(-0.01, 29)...), testNow.AddDate(0, 0, -5))
	d, _ := findDecision(m.Evaluate(rec, nil, testNow), TriggerRetirement)
	assert.Equal(t, ActionNone, d.Action)
	assert.NotEqual(t, domain.ModelRetired, rec.Status)
}

func TestDegradationIsReversible(t *testing.T) {
	m := NewManager(DefaultConfig())

	rec := newModel(repeat(0.01, 10), testNow.AddDate(0, 0, -5))
	d, _ := findDecision(m.Evaluate(rec, nil, testNow), TriggerDegradation)
	assert.Equal(t, ActionDegrade, d.Action)
	assert.Equal(t, domain.ModelDegraded, rec.Status)

	// IC recovers: the model is restored to active.
	for i := 0; i < 10; i++ {
		rec.ICHistory.Push(0.06)
	}
	d, _ = findDecision(m.Evaluate(rec, nil, testNow.AddDate(0, 0, 1)), TriggerDegradation)
	assert.Equal(t, ActionRestore, d.Action)
	assert.Equal(t, domain.ModelActive, rec.Status)
}

func TestPromotionGate(t *testing.T) {
	m := NewManager(DefaultConfig())

	strongCandidate := CandidateMetrics{
		ICHistory:    []float64{0.050, 0.052, 0.048, 0.051, 0.049, 0.050, 0.053, 0.047, 0.051, 0.050},
		TrainIC:      0.055,
		ValidationIC: 0.050,
	}

	t.Run("clear improvement promotes", func(t *testing.T) {
		active := newModel([]float64{0.020, 0.022, 0.018, 0.021, 0.019, 0.020, 0.023, 0.017, 0.021, 0.020}, testNow)
		promoted, d := m.EvaluatePromotion(active, strongCandidate, testNow)
		assert.True(t, promoted)
		assert.Equal(t, ActionPromote, d.Action)
		assert.Less(t, d.Evidence["p_value"], 0.05)
	})

	t.Run("improvement under floor discards", func(t *testing.T) {
		active := newModel(repeat(0.045, 10), testNow)
		promoted, d := m.EvaluatePromotion(active, strongCandidate, testNow)
		assert.False(t, promoted)
		assert.Equal(t, ActionDiscard, d.Action)
	})

	t.Run("insignificant improvement discards", func(t *testing.T) {
		// Same means offset slightly, huge variance: fails the t-test.
		noisy := CandidateMetrics{
			ICHistory:    []float64{0.20, -0.15, 0.18, -0.12, 0.15, -0.10, 0.12, -0.08, 0.10, 0.05},
			TrainIC:      0.05,
			ValidationIC: 0.04,
		}
		active := newModel([]float64{0.01, 0.02, 0.01, 0.02, 0.01, 0.02, 0.01, 0.02, 0.01, 0.02}, testNow)
		promoted, d := m.EvaluatePromotion(active, noisy, testNow)
		assert.False(t, promoted)
		assert.Equal(t, ActionDiscard, d.Action)
	})

	t.Run("overfit candidate discards", func(t *testing.T) {
		overfit := CandidateMetrics{
			ICHistory:    strongCandidate.ICHistory,
			TrainIC:      0.15,
			ValidationIC: 0.05,
		}
		active := newModel(repeat(0.02, 10), testNow)
		promoted, d := m.EvaluatePromotion(active, overfit, testNow)
		assert.False(t, promoted)
		assert.Equal(t, ActionDiscard, d.Action)
		assert.Contains(t, d.Reason, "overfit")
	})
}

func TestSchedulerPolling(t *testing.T) {
	s := NewScheduler(30)

	assert.False(t, s.Due(testNow.AddDate(0, 0, -29), testNow))
	assert.True(t, s.Due(testNow.AddDate(0, 0, -30), testNow))
	assert.True(t, s.Due(time.Time{}, testNow), "zero last retrain is past due")
	assert.Equal(t, 29, s.DaysSince(testNow.AddDate(0, 0, -29), testNow))
}

func TestBuildReport(t *testing.T) {
	m := NewManager(DefaultConfig())
	rec := newModel([]float64{0.01, 0.02, 0.03}, testNow.AddDate(0, 0, -3))

	report := m.BuildReport(rec)
	assert.Equal(t, rec.ModelID, report.ModelID)
	assert.Equal(t, 3, report.ICObservations)
	assert.InDelta(t, 0.03, report.CurrentIC, 1e-12)
	assert.InDelta(t, 0.02, report.MeanICLast30, 1e-12)
	assert.False(t, report.RetireEligible)
}
