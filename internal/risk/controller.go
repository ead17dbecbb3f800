package risk

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/riskrun/internal/domain"
)

// ControllerConfig holds the drawdown ladder, stop thresholds and the
// safe-haven allow-list.
type ControllerConfig struct {
	// Drawdown thresholds per level, highest exceeded wins.
	Level1Drawdown float64 `yaml:"level1_drawdown"` // 0.05
	Level2Drawdown float64 `yaml:"level2_drawdown"` // 0.08
	Level3Drawdown float64 `yaml:"level3_drawdown"` // 0.12
	Level4Drawdown float64 `yaml:"level4_drawdown"` // 0.15

	// Per-asset stops, independent of the portfolio level.
	AssetStopReduce float64 `yaml:"asset_stop_reduce"` // 0.12 -> reduce to 50%
	AssetStopExit   float64 `yaml:"asset_stop_exit"`   // 0.18 -> full exit

	// Extreme-correlation override forces at least this level.
	CorrelationOverrideLevel domain.RiskLevel `yaml:"correlation_override_level"` // 2

	SafeHavens []string `yaml:"safe_havens"` // default GLD, TLT
}

// DefaultControllerConfig returns the production risk ladder.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Level1Drawdown:           0.05,
		Level2Drawdown:           0.08,
		Level3Drawdown:           0.12,
		Level4Drawdown:           0.15,
		AssetStopReduce:          0.12,
		AssetStopExit:            0.18,
		CorrelationOverrideLevel: domain.RiskLevelReduce,
		SafeHavens:               []string{"GLD", "TLT"},
	}
}

// Controller is the top-level hierarchical risk state machine. It is a
// pure function of the inputs plus the persisted RiskState passed in and
// returned updated; within one evaluation the level only moves up.
// Stepping down happens exclusively through the re-entry path.
type Controller struct {
	config     ControllerConfig
	monitor    *CorrelationMonitor
	safeHavens map[string]bool
}

// NewController creates a risk controller.
func NewController(config ControllerConfig, monitor *CorrelationMonitor) *Controller {
	if config.Level4Drawdown == 0 {
		config = DefaultControllerConfig()
	}
	havens := make(map[string]bool, len(config.SafeHavens))
	for _, s := range config.SafeHavens {
		havens[s] = true
	}
	return &Controller{config: config, monitor: monitor, safeHavens: havens}
}

// AssessInput bundles the read-only inputs to one evaluation.
type AssessInput struct {
	Portfolio *domain.Portfolio
	// Snapshot may be nil when the correlation window has insufficient
	// history; the override is then skipped, never treated as an error.
	Snapshot *CorrelationSnapshot
	// Prices are current marks used for the per-asset stop checks.
	Prices map[string]float64
	Now    time.Time
}

// Assess maps drawdown to a risk level, applies the correlation override,
// attaches the level's action set and runs per-asset stops. The returned
// state carries the (possibly escalated) level and transition history.
func (c *Controller) Assess(input AssessInput, state domain.RiskState) (domain.RiskAssessment, domain.RiskState) {
	dd := input.Portfolio.Drawdown()
	level := c.LevelForDrawdown(dd)

	assessment := domain.RiskAssessment{
		Drawdown:  dd,
		Timestamp: input.Now,
	}

	if input.Snapshot != nil && c.monitor != nil &&
		input.Snapshot.AllPairsAbove(c.monitor.ExtremeThreshold()) {
		if level < c.config.CorrelationOverrideLevel {
			level = c.config.CorrelationOverrideLevel
		}
		assessment.CorrelationForce = true
		assessment.Violations = append(assessment.Violations,
			fmt.Sprintf("extreme correlation override: forcing at least level %d", int(c.config.CorrelationOverrideLevel)))
	}

	// Within a cycle the level is monotone: drawdown reassessment never
	// steps down, only the re-entry path does.
	if level < state.CurrentLevel {
		level = state.CurrentLevel
	}
	if level > state.CurrentLevel {
		reason := fmt.Sprintf("drawdown %.2f%% escalated risk level %d -> %d", dd*100, int(state.CurrentLevel), int(level))
		if assessment.CorrelationForce && level == c.config.CorrelationOverrideLevel {
			reason = fmt.Sprintf("correlation override escalated risk level %d -> %d", int(state.CurrentLevel), int(level))
		}
		state.Transition(level, reason, input.Now)
		assessment.Violations = append(assessment.Violations, reason)
		log.Warn().
			Int("from", int(state.History[len(state.History)-1].From)).
			Int("to", int(level)).
			Float64("drawdown", dd).
			Msg("Risk level escalated")
	}

	assessment.Level = state.CurrentLevel
	assessment.Actions = c.ActionsForLevel(state.CurrentLevel)
	assessment.ManualReview = state.CurrentLevel >= domain.RiskLevelDefensive
	assessment.ManualConfirm = state.CurrentLevel >= domain.RiskLevelHalt
	assessment.RecoveryMode = state.RecoveryMode
	assessment.WeeksInRecovery = state.WeeksInRecovery
	assessment.AssetStops = c.CheckAssetStops(input.Portfolio, input.Prices)

	log.Info().
		Int("level", int(assessment.Level)).
		Float64("drawdown", dd).
		Int("asset_stops", len(assessment.AssetStops)).
		Msg("Risk assessment complete")

	return assessment, state
}

// LevelForDrawdown maps a drawdown to the highest exceeded threshold.
func (c *Controller) LevelForDrawdown(dd float64) domain.RiskLevel {
	switch {
	case dd >= c.config.Level4Drawdown:
		return domain.RiskLevelHalt
	case dd >= c.config.Level3Drawdown:
		return domain.RiskLevelDefensive
	case dd >= c.config.Level2Drawdown:
		return domain.RiskLevelReduce
	case dd >= c.config.Level1Drawdown:
		return domain.RiskLevelAlert
	default:
		return domain.RiskLevelNormal
	}
}

// ActionsForLevel returns the fixed, non-overlapping action set per level.
func (c *Controller) ActionsForLevel(level domain.RiskLevel) []domain.RiskAction {
	switch level {
	case domain.RiskLevelAlert:
		return []domain.RiskAction{
			domain.ActionAlert,
			domain.ActionRaiseConfidenceThreshold,
			domain.ActionBlockHighVolEntries,
		}
	case domain.RiskLevelReduce:
		return []domain.RiskAction{
			domain.ActionScalePositions75,
			domain.ActionFlattenHighVolClass,
			domain.ActionSellOnly,
		}
	case domain.RiskLevelDefensive:
		return []domain.RiskAction{
			domain.ActionScalePositions50,
			domain.ActionSafeHavenOnly,
			domain.ActionManualReview,
		}
	case domain.RiskLevelHalt:
		return []domain.RiskAction{
			domain.ActionLiquidateNonSafeHaven,
			domain.ActionRequireManualConfirm,
		}
	default:
		return nil
	}
}

// PositionScale returns the factor applied to current weights at a level.
func (c *Controller) PositionScale(level domain.RiskLevel) float64 {
	switch level {
	case domain.RiskLevelReduce:
		return 0.75
	case domain.RiskLevelDefensive:
		return 0.50
	case domain.RiskLevelHalt:
		return 0.0
	default:
		return 1.0
	}
}

// CheckAssetStops runs the per-asset stop logic for every held asset.
// Thresholds are inclusive: exactly 12% triggers the reduction, exactly
// 18% the exit. This runs every cycle regardless of portfolio level.
func (c *Controller) CheckAssetStops(portfolio *domain.Portfolio, prices map[string]float64) []domain.AssetStop {
	symbols := make([]string, 0, len(portfolio.Positions))
	for sym, qty := range portfolio.Positions {
		if qty > 0 {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)

	var stops []domain.AssetStop
	for _, sym := range symbols {
		price, ok := prices[sym]
		if !ok {
			continue
		}
		dd := portfolio.AssetDrawdown(sym, price)
		switch {
		case dd >= c.config.AssetStopExit:
			stops = append(stops, domain.AssetStop{Symbol: sym, Action: domain.StopExit, Drawdown: dd})
			log.Error().Str("symbol", sym).Float64("drawdown", dd).Msg("Asset stop loss: full exit")
		case dd >= c.config.AssetStopReduce:
			stops = append(stops, domain.AssetStop{Symbol: sym, Action: domain.StopReduce50, Drawdown: dd})
			log.Warn().Str("symbol", sym).Float64("drawdown", dd).Msg("Asset stop loss: reduce to 50%")
		}
	}
	return stops
}

// IsSafeHaven reports whether the symbol is on the safe-haven allow-list.
func (c *Controller) IsSafeHaven(symbol string) bool { return c.safeHavens[symbol] }

// StepDown is the explicit re-entry path: the only way the level
// decreases. It drops the state to the target level and flags recovery.
func (c *Controller) StepDown(state domain.RiskState, to domain.RiskLevel, reason string, at time.Time) domain.RiskState {
	if to >= state.CurrentLevel {
		return state
	}
	state.Transition(to, reason, at)
	state.RecoveryMode = true
	state.WeeksInRecovery = 0
	log.Info().Int("to", int(to)).Str("reason", reason).Msg("Risk level stepped down via re-entry path")
	return state
}
