package domain

import (
	"fmt"
	"time"
)

// RiskLevel is the portfolio-level risk control level (0 = normal, 4 = halt).
type RiskLevel int

const (
	RiskLevelNormal    RiskLevel = 0
	RiskLevelAlert     RiskLevel = 1
	RiskLevelReduce    RiskLevel = 2
	RiskLevelDefensive RiskLevel = 3
	RiskLevelHalt      RiskLevel = 4
)

func (l RiskLevel) Valid() bool { return l >= 0 && l <= 4 }

func (l RiskLevel) String() string {
	switch l {
	case RiskLevelNormal:
		return "NORMAL"
	case RiskLevelAlert:
		return "ALERT"
	case RiskLevelReduce:
		return "REDUCE"
	case RiskLevelDefensive:
		return "DEFENSIVE"
	case RiskLevelHalt:
		return "HALT"
	default:
		return fmt.Sprintf("LEVEL_%d", int(l))
	}
}

// RiskAction is a control action attached to a risk level.
type RiskAction string

const (
	ActionAlert                    RiskAction = "ALERT"
	ActionRaiseConfidenceThreshold RiskAction = "RAISE_CONFIDENCE_THRESHOLD"
	ActionBlockHighVolEntries      RiskAction = "BLOCK_HIGH_VOL_ENTRIES"
	ActionScalePositions75         RiskAction = "SCALE_POSITIONS_75"
	ActionFlattenHighVolClass      RiskAction = "FLATTEN_HIGH_VOL_CLASS"
	ActionSellOnly                 RiskAction = "SELL_ONLY"
	ActionScalePositions50         RiskAction = "SCALE_POSITIONS_50"
	ActionSafeHavenOnly            RiskAction = "SAFE_HAVEN_ONLY"
	ActionManualReview             RiskAction = "MANUAL_REVIEW"
	ActionLiquidateNonSafeHaven    RiskAction = "LIQUIDATE_NON_SAFE_HAVEN"
	ActionRequireManualConfirm     RiskAction = "REQUIRE_MANUAL_CONFIRM"
)

// StopAction is a per-asset stop decision, independent of the portfolio level.
type StopAction string

const (
	StopExit     StopAction = "EXIT"
	StopReduce50 StopAction = "REDUCE_50"
)

// AssetStop names an asset whose single-asset stop fired this cycle.
type AssetStop struct {
	Symbol   string     `json:"symbol"`
	Action   StopAction `json:"action"`
	Drawdown float64    `json:"drawdown"`
}

// LevelTransition records one risk-level change with its trigger.
type LevelTransition struct {
	From      RiskLevel `json:"from"`
	To        RiskLevel `json:"to"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// RiskState is the persisted state machine state, passed into each
// evaluation and returned updated. Levels only decrease through the
// explicit re-entry path.
type RiskState struct {
	CurrentLevel    RiskLevel         `json:"current_level"`
	History         []LevelTransition `json:"history"`
	RecoveryMode    bool              `json:"recovery_mode"`
	WeeksInRecovery int               `json:"weeks_in_recovery"`
}

// Transition appends a level change and moves the state machine.
func (s *RiskState) Transition(to RiskLevel, reason string, at time.Time) {
	s.History = append(s.History, LevelTransition{
		From:      s.CurrentLevel,
		To:        to,
		Reason:    reason,
		Timestamp: at,
	})
	s.CurrentLevel = to
}

// AlertSeverity classifies correlation and risk alerts.
type AlertSeverity string

const (
	SeverityWarning AlertSeverity = "WARNING"
	SeverityLevel1  AlertSeverity = "LEVEL_1"
	SeverityLevel2  AlertSeverity = "LEVEL_2"
)

// CorrelatedPair names one asset pair above the pair threshold.
type CorrelatedPair struct {
	A           string  `json:"a"`
	B           string  `json:"b"`
	Correlation float64 `json:"correlation"`
}

// Alert is a structured risk alert with a human-readable reason.
type Alert struct {
	Severity AlertSeverity    `json:"severity"`
	Message  string           `json:"message"`
	Pairs    []CorrelatedPair `json:"pairs,omitempty"`
	AvgCorr  float64          `json:"avg_corr,omitempty"`
}

// RiskAssessment is the per-cycle output of the risk controller.
type RiskAssessment struct {
	Level            RiskLevel    `json:"level"`
	Drawdown         float64      `json:"drawdown"`
	Actions          []RiskAction `json:"actions"`
	Violations       []string     `json:"violations"`
	Alerts           []Alert      `json:"alerts,omitempty"`
	AssetStops       []AssetStop  `json:"asset_stops,omitempty"`
	RecoveryMode     bool         `json:"recovery_mode"`
	WeeksInRecovery  int          `json:"weeks_in_recovery"`
	ManualReview     bool         `json:"manual_review_required"`
	ManualConfirm    bool         `json:"manual_confirm_required"`
	CorrelationForce bool         `json:"correlation_override"`
	Timestamp        time.Time    `json:"timestamp"`
}
