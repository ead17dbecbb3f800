package risk

import (
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/riskrun/internal/domain"
)

// ReEntryConfig governs recovery pacing after an emergency de-risking.
type ReEntryConfig struct {
	CooldownObservations int     `yaml:"cooldown_observations"` // 5 consecutive low-vol obs
	InitialPositionPct   float64 `yaml:"initial_position_pct"`  // 0.25
	RampWeeklyPct        float64 `yaml:"ramp_weekly_pct"`       // +0.25 per week
	MaxLeverageRecovery  float64 `yaml:"max_leverage_recovery"` // 1.0, no amplification
	MaxLeverageNormal    float64 `yaml:"max_leverage_normal"`   // 1.5
	RecoveryWeeks        int     `yaml:"recovery_weeks"`        // complete after 4
}

// DefaultReEntryConfig returns the production recovery pacing.
func DefaultReEntryConfig() ReEntryConfig {
	return ReEntryConfig{
		CooldownObservations: 5,
		InitialPositionPct:   0.25,
		RampWeeklyPct:        0.25,
		MaxLeverageRecovery:  1.0,
		MaxLeverageNormal:    1.5,
		RecoveryWeeks:        4,
	}
}

// ReEntryManager paces the return to normal sizing after a level-4 halt.
type ReEntryManager struct {
	config ReEntryConfig
}

// NewReEntryManager creates a re-entry manager.
func NewReEntryManager(config ReEntryConfig) *ReEntryManager {
	if config.CooldownObservations <= 0 {
		config = DefaultReEntryConfig()
	}
	return &ReEntryManager{config: config}
}

// CanReenter reports whether volatility has stayed below the target for
// the required consecutive observations immediately preceding the check.
// A single breach inside the window resets the count, so the last
// CooldownObservations values must all be below target.
func (r *ReEntryManager) CanReenter(volatility []float64, targetVol float64) bool {
	n := r.config.CooldownObservations
	if len(volatility) < n {
		log.Debug().Int("observations", len(volatility)).Int("required", n).
			Msg("Insufficient volatility history for re-entry check")
		return false
	}
	for _, v := range volatility[len(volatility)-n:] {
		if v >= targetVol {
			return false
		}
	}
	log.Info().Float64("target_vol", targetVol).Int("consecutive", n).
		Msg("Re-entry conditions met")
	return true
}

// NextPositionScale returns the fraction of normal position size for the
// given recovery week. Week 0 (the first week of recovery) is 25%, each
// subsequent week adds 25 points, reaching 100% after week 4.
func (r *ReEntryManager) NextPositionScale(weeksInRecovery int) float64 {
	if weeksInRecovery < 0 {
		weeksInRecovery = 0
	}
	scale := r.config.InitialPositionPct + float64(weeksInRecovery)*r.config.RampWeeklyPct
	if scale > 1.0 {
		scale = 1.0
	}
	return scale
}

// MaxLeverage returns the leverage ceiling: capped at 1.0 throughout
// recovery regardless of the strategy's normal ceiling.
func (r *ReEntryManager) MaxLeverage(inRecovery bool) float64 {
	if inRecovery {
		return r.config.MaxLeverageRecovery
	}
	return r.config.MaxLeverageNormal
}

// AdvanceRecovery increments the recovery week and ends recovery mode once
// the ramp is complete.
func (r *ReEntryManager) AdvanceRecovery(state domain.RiskState) domain.RiskState {
	if !state.RecoveryMode {
		return state
	}
	state.WeeksInRecovery++
	if state.WeeksInRecovery >= r.config.RecoveryWeeks {
		state.RecoveryMode = false
		state.WeeksInRecovery = 0
		log.Info().Msg("Recovery complete: normal sizing restored")
	}
	return state
}
