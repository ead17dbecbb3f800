package domain

// Portfolio is the point-in-time portfolio state the decision engine reads.
// It is loaded from the persistence collaborator before a cycle and never
// mutated by the core except through UpdateNAV.
type Portfolio struct {
	Positions        map[string]float64 `json:"positions"`  // symbol -> quantity
	Cash             float64            `json:"cash"`
	NAV              float64            `json:"nav"`
	PeakNAV          float64            `json:"peak_nav"` // high-water mark, never decreases
	Weights          map[string]float64 `json:"weights"`  // symbol -> fraction of NAV
	UnrealizedPnL    float64            `json:"unrealized_pnl"`
	CostBasis        map[string]float64 `json:"cost_basis"` // symbol -> average entry price
	TargetVolatility float64            `json:"target_volatility"`
}

// Drawdown returns the current decline from the peak NAV, in [0, 1].
func (p *Portfolio) Drawdown() float64 {
	if p.PeakNAV <= 0 {
		return 0.0
	}
	dd := (p.PeakNAV - p.NAV) / p.PeakNAV
	if dd < 0 {
		return 0.0
	}
	return dd
}

// UpdateNAV sets the current NAV and ratchets the high-water mark.
func (p *Portfolio) UpdateNAV(nav float64) {
	p.NAV = nav
	if nav > p.PeakNAV {
		p.PeakNAV = nav
	}
}

// AssetDrawdown returns the per-asset decline from entry price.
// Returns 0 when no cost basis is known for the symbol.
func (p *Portfolio) AssetDrawdown(symbol string, currentPrice float64) float64 {
	entry, ok := p.CostBasis[symbol]
	if !ok || entry <= 0 {
		return 0.0
	}
	return (entry - currentPrice) / entry
}
