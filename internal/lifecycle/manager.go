// Package lifecycle decides when predictive models are retrained, retired
// or replaced, and tracks concept drift between training-time and live
// feature distributions.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/riskrun/internal/domain"
	"github.com/sawpanic/riskrun/internal/stats"
)

// TriggerType identifies the lifecycle trigger a decision came from.
type TriggerType string

const (
	TriggerScheduledRetrain   TriggerType = "SCHEDULED_RETRAIN"
	TriggerPerformanceRetrain TriggerType = "PERFORMANCE_RETRAIN"
	TriggerDriftRetrain       TriggerType = "DRIFT_RETRAIN"
	TriggerRetirement         TriggerType = "RETIREMENT"
	TriggerDegradation        TriggerType = "DEGRADATION"
	TriggerPromotion          TriggerType = "PROMOTION"
)

// Action is the verdict of one trigger evaluation.
type Action string

const (
	ActionNone    Action = "NONE"
	ActionRetrain Action = "RETRAIN"
	ActionRetire  Action = "RETIRE"
	ActionDegrade Action = "DEGRADE"
	ActionRestore Action = "RESTORE"
	ActionPromote Action = "PROMOTE"
	ActionDiscard Action = "DISCARD"
	ActionWarn    Action = "WARN"
)

// Decision is the structured audit record emitted for every trigger
// evaluation, whether or not action is taken. Evidence carries the raw
// values the verdict rests on.
type Decision struct {
	ID        string             `json:"id"`
	ModelID   string             `json:"model_id"`
	Trigger   TriggerType        `json:"trigger"`
	Action    Action             `json:"action"`
	Reason    string             `json:"reason"`
	Evidence  map[string]float64 `json:"evidence"`
	Timestamp time.Time          `json:"timestamp"`
}

// Config holds the lifecycle thresholds.
type Config struct {
	RetrainIntervalDays   int     `yaml:"retrain_interval_days"`  // 30
	RetrainICThreshold    float64 `yaml:"retrain_ic_threshold"`   // 0.02
	RetrainICObservations int     `yaml:"retrain_ic_observations"` // 10 consecutive
	RetireICThreshold     float64 `yaml:"retire_ic_threshold"`    // 0.0
	RetireICObservations  int     `yaml:"retire_ic_observations"` // 30 consecutive
	DriftWarnKS           float64 `yaml:"drift_warn_ks"`          // 0.1
	DriftRetrainKS        float64 `yaml:"drift_retrain_ks"`       // 0.2
	DriftWindow           int     `yaml:"drift_window"`           // last 20 observations
	MinICImprovement      float64 `yaml:"min_ic_improvement"`     // 0.01
	PValueThreshold       float64 `yaml:"p_value_threshold"`      // 0.05
	OverfitICGap          float64 `yaml:"overfit_ic_gap"`         // train-validation gap
}

// DefaultConfig returns the production lifecycle thresholds.
func DefaultConfig() Config {
	return Config{
		RetrainIntervalDays:   30,
		RetrainICThreshold:    0.02,
		RetrainICObservations: 10,
		RetireICThreshold:     0.0,
		RetireICObservations:  30,
		DriftWarnKS:           0.1,
		DriftRetrainKS:        0.2,
		DriftWindow:           20,
		MinICImprovement:      0.01,
		PValueThreshold:       0.05,
		OverfitICGap:          0.05,
	}
}

// Manager evaluates lifecycle triggers once per cycle. It holds no model
// state of its own: everything it needs rides on the ModelRecord.
type Manager struct {
	config    Config
	scheduler *Scheduler
}

// NewManager creates a lifecycle manager.
func NewManager(config Config) *Manager {
	if config.RetrainIntervalDays <= 0 {
		config = DefaultConfig()
	}
	return &Manager{
		config:    config,
		scheduler: NewScheduler(config.RetrainIntervalDays),
	}
}

// Evaluate runs every trigger against the model once: scheduled retrain,
// performance retrain, drift, degradation and retirement. One decision is
// emitted per trigger regardless of outcome. A retired model is never
// reconsidered and yields no decisions.
func (m *Manager) Evaluate(rec *domain.ModelRecord, liveFeatures map[string][]float64, now time.Time) []Decision {
	if rec.Retired() {
		return nil
	}
	if rec.ICHistory == nil {
		rec.ICHistory = domain.NewSeries(m.config.RetireICObservations)
	}

	decisions := []Decision{
		m.evaluateScheduled(rec, now),
		m.evaluatePerformance(rec, now),
		m.evaluateDrift(rec, liveFeatures, now),
		m.evaluateDegradation(rec, now),
		m.evaluateRetirement(rec, now),
	}

	for _, d := range decisions {
		if d.Action != ActionNone {
			log.Warn().Str("model", rec.ModelID).
				Str("trigger", string(d.Trigger)).
				Str("action", string(d.Action)).
				Str("reason", d.Reason).
				Msg("Lifecycle trigger fired")
		}
	}
	return decisions
}

// RetrainNeeded reports whether any decision in the set calls for retrain.
func RetrainNeeded(decisions []Decision) bool {
	for _, d := range decisions {
		if d.Action == ActionRetrain {
			return true
		}
	}
	return false
}

func (m *Manager) evaluateScheduled(rec *domain.ModelRecord, now time.Time) Decision {
	d := m.newDecision(rec, TriggerScheduledRetrain, now)
	days := m.scheduler.DaysSince(rec.LastRetrainDate, now)
	d.Evidence["days_since_retrain"] = float64(days)

	if m.scheduler.Due(rec.LastRetrainDate, now) {
		d.Action = ActionRetrain
		d.Reason = fmt.Sprintf("scheduled retrain: %d days since last (limit %d)", days, m.config.RetrainIntervalDays)
	} else {
		d.Reason = fmt.Sprintf("%d of %d days until scheduled retrain", days, m.config.RetrainIntervalDays)
	}
	return d
}

func (m *Manager) evaluatePerformance(rec *domain.ModelRecord, now time.Time) Decision {
	d := m.newDecision(rec, TriggerPerformanceRetrain, now)
	recent := rec.ICHistory.Last(m.config.RetrainICObservations)
	d.Evidence["recent_ic_mean"] = stats.Mean(recent)
	d.Evidence["observations"] = float64(len(recent))

	if len(recent) >= m.config.RetrainICObservations && allBelow(recent, m.config.RetrainICThreshold) {
		d.Action = ActionRetrain
		d.Reason = fmt.Sprintf("rolling IC below %.3f for %d consecutive observations",
			m.config.RetrainICThreshold, m.config.RetrainICObservations)
	} else {
		d.Reason = "rolling IC within tolerance"
	}
	return d
}

func (m *Manager) evaluateDrift(rec *domain.ModelRecord, liveFeatures map[string][]float64, now time.Time) Decision {
	d := m.newDecision(rec, TriggerDriftRetrain, now)
	scores := m.DetectDrift(rec.TrainingFeatures, liveFeatures)

	maxKS := 0.0
	worst := ""
	for feature, ks := range scores {
		d.Evidence["ks_"+feature] = ks
		if ks > maxKS {
			maxKS = ks
			worst = feature
		}
	}
	d.Evidence["max_ks"] = maxKS

	switch {
	case maxKS > m.config.DriftRetrainKS:
		d.Action = ActionRetrain
		d.Reason = fmt.Sprintf("feature %q drifted: KS %.3f above %.2f", worst, maxKS, m.config.DriftRetrainKS)
	case maxKS >= m.config.DriftWarnKS:
		d.Action = ActionWarn
		d.Reason = fmt.Sprintf("feature %q drift warning: KS %.3f in [%.2f, %.2f]", worst, maxKS, m.config.DriftWarnKS, m.config.DriftRetrainKS)
	default:
		d.Reason = "no material feature drift"
	}
	return d
}

// evaluateDegradation flips ACTIVE to DEGRADED while the recent IC stays
// under the retrain threshold, and restores ACTIVE once it recovers. This
// is the only reversible transition.
func (m *Manager) evaluateDegradation(rec *domain.ModelRecord, now time.Time) Decision {
	d := m.newDecision(rec, TriggerDegradation, now)
	recent := rec.ICHistory.Last(m.config.RetrainICObservations)
	mean := stats.Mean(recent)
	d.Evidence["recent_ic_mean"] = mean

	degraded := len(recent) >= m.config.RetrainICObservations && mean < m.config.RetrainICThreshold
	switch {
	case degraded && rec.Status == domain.ModelActive:
		rec.Status = domain.ModelDegraded
		d.Action = ActionDegrade
		d.Reason = fmt.Sprintf("mean IC %.4f under %.3f: model degraded", mean, m.config.RetrainICThreshold)
	case !degraded && rec.Status == domain.ModelDegraded:
		rec.Status = domain.ModelActive
		d.Action = ActionRestore
		d.Reason = fmt.Sprintf("mean IC %.4f recovered: model restored to active", mean)
	default:
		d.Reason = fmt.Sprintf("status %s unchanged", rec.Status)
	}
	return d
}

func (m *Manager) evaluateRetirement(rec *domain.ModelRecord, now time.Time) Decision {
	d := m.newDecision(rec, TriggerRetirement, now)
	recent := rec.ICHistory.Last(m.config.RetireICObservations)
	d.Evidence["observations"] = float64(len(recent))
	d.Evidence["recent_ic_mean"] = stats.Mean(recent)

	if len(recent) >= m.config.RetireICObservations && allBelow(recent, m.config.RetireICThreshold) {
		rec.Retire()
		d.Action = ActionRetire
		d.Reason = fmt.Sprintf("IC below %.2f for %d consecutive observations: model retired",
			m.config.RetireICThreshold, m.config.RetireICObservations)
	} else {
		d.Reason = "retirement criteria not met"
	}
	return d
}

// CandidateMetrics carries a retrained candidate's validation results.
type CandidateMetrics struct {
	ICHistory    []float64 `json:"ic_history"`
	TrainIC      float64   `json:"train_ic"`
	ValidationIC float64   `json:"validation_ic"`
}

// EvaluatePromotion decides whether a retrained candidate replaces the
// active model. The candidate must beat the active model's IC by more
// than the improvement floor and the difference must be statistically
// significant; an excessive train/validation gap marks the candidate as
// overfit and blocks promotion. A rejected candidate is discarded, not
// retired: it was never deployed.
func (m *Manager) EvaluatePromotion(active *domain.ModelRecord, candidate CandidateMetrics, now time.Time) (bool, Decision) {
	d := m.newDecision(active, TriggerPromotion, now)

	activeICs := active.ICHistory.Values()
	activeMean := stats.Mean(activeICs)
	candMean := stats.Mean(candidate.ICHistory)
	diff := candMean - activeMean
	gap := candidate.TrainIC - candidate.ValidationIC

	d.Evidence["active_ic_mean"] = activeMean
	d.Evidence["candidate_ic_mean"] = candMean
	d.Evidence["ic_improvement"] = diff
	d.Evidence["train_validation_gap"] = gap

	if gap > m.config.OverfitICGap {
		d.Action = ActionDiscard
		d.Reason = fmt.Sprintf("overfit detected: train-validation IC gap %.4f above %.3f", gap, m.config.OverfitICGap)
		return false, d
	}

	if diff <= m.config.MinICImprovement {
		d.Action = ActionDiscard
		d.Reason = fmt.Sprintf("IC improvement %.4f not above %.3f floor", diff, m.config.MinICImprovement)
		return false, d
	}

	p := stats.WelchTPValue(candidate.ICHistory, activeICs)
	d.Evidence["p_value"] = p
	if p >= m.config.PValueThreshold {
		d.Action = ActionDiscard
		d.Reason = fmt.Sprintf("improvement not significant: p=%.3f above %.2f", p, m.config.PValueThreshold)
		return false, d
	}

	d.Action = ActionPromote
	d.Reason = fmt.Sprintf("candidate promoted: IC improved %.4f, p=%.3f", diff, p)
	log.Info().Str("model", active.ModelID).Float64("improvement", diff).Float64("p", p).
		Msg("Candidate model promoted")
	return true, d
}

// Report summarizes a model's lifecycle status for operators.
type Report struct {
	ModelID        string             `json:"model_id"`
	Status         domain.ModelStatus `json:"status"`
	LastRetrain    time.Time          `json:"last_retrain"`
	ICObservations int                `json:"ic_observations"`
	CurrentIC      float64            `json:"current_ic"`
	MeanICLast30   float64            `json:"mean_ic_last_30"`
	RetireEligible bool               `json:"retire_eligible"`
}

// BuildReport produces the operator-facing lifecycle summary.
func (m *Manager) BuildReport(rec *domain.ModelRecord) Report {
	values := rec.ICHistory.Values()
	r := Report{
		ModelID:        rec.ModelID,
		Status:         rec.Status,
		LastRetrain:    rec.LastRetrainDate,
		ICObservations: len(values),
		MeanICLast30:   stats.Mean(rec.ICHistory.Last(30)),
	}
	if len(values) > 0 {
		r.CurrentIC = values[len(values)-1]
	}
	recent := rec.ICHistory.Last(m.config.RetireICObservations)
	r.RetireEligible = len(recent) >= m.config.RetireICObservations && allBelow(recent, m.config.RetireICThreshold)
	return r
}

func (m *Manager) newDecision(rec *domain.ModelRecord, trigger TriggerType, now time.Time) Decision {
	return Decision{
		ID:        uuid.NewString(),
		ModelID:   rec.ModelID,
		Trigger:   trigger,
		Action:    ActionNone,
		Evidence:  make(map[string]float64),
		Timestamp: now,
	}
}

func allBelow(values []float64, threshold float64) bool {
	for _, v := range values {
		if v >= threshold {
			return false
		}
	}
	return len(values) > 0
}
