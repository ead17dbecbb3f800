package risk

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/riskrun/internal/domain"
	"github.com/sawpanic/riskrun/internal/stats"
)

// ErrInsufficientData is returned when the universe has fewer than two
// assets or any returns series is shorter than the configured correlation
// window. Callers degrade gracefully: the correlation override is simply
// skipped.
var ErrInsufficientData = errors.New("insufficient data for correlation window")

// CorrelationSnapshot is a symmetric asset correlation matrix over a fixed
// rolling window. Diagonal is 1.0. Consumed read-only by the controller.
type CorrelationSnapshot struct {
	Symbols []string    `json:"symbols"`
	Matrix  [][]float64 `json:"matrix"`
	Window  int         `json:"window"`
}

// At returns the correlation between symbols i and j by matrix position.
func (s *CorrelationSnapshot) At(i, j int) float64 { return s.Matrix[i][j] }

// pairwise iterates the upper triangle (i < j).
func (s *CorrelationSnapshot) pairwise(fn func(i, j int, corr float64)) {
	for i := 0; i < len(s.Symbols); i++ {
		for j := i + 1; j < len(s.Symbols); j++ {
			fn(i, j, s.Matrix[i][j])
		}
	}
}

// AllPairsAbove reports whether every off-diagonal correlation exceeds
// threshold. False for universes with fewer than two assets.
func (s *CorrelationSnapshot) AllPairsAbove(threshold float64) bool {
	if len(s.Symbols) < 2 {
		return false
	}
	all := true
	s.pairwise(func(_, _ int, corr float64) {
		if corr <= threshold {
			all = false
		}
	})
	return all
}

// AverageCorrelation returns the mean absolute upper-triangle correlation.
func (s *CorrelationSnapshot) AverageCorrelation() float64 {
	var sum float64
	var n int
	s.pairwise(func(_, _ int, corr float64) {
		if corr < 0 {
			corr = -corr
		}
		sum += corr
		n++
	})
	if n == 0 {
		return 0.0
	}
	return sum / float64(n)
}

// CorrelationConfig holds the monitor thresholds and window.
type CorrelationConfig struct {
	Window           int     `yaml:"window"`            // 60 observations
	PairWarning      float64 `yaml:"pair_warning"`      // single pair > 0.7
	PortfolioWarning float64 `yaml:"portfolio_warning"` // avg upper triangle > 0.5
	ExtremeThreshold float64 `yaml:"extreme_threshold"` // all pairs > 0.8
	ParallelMinPairs int     `yaml:"parallel_min_pairs"`
}

// DefaultCorrelationConfig returns the production thresholds.
func DefaultCorrelationConfig() CorrelationConfig {
	return CorrelationConfig{
		Window:           60,
		PairWarning:      0.7,
		PortfolioWarning: 0.5,
		ExtremeThreshold: 0.8,
		ParallelMinPairs: 64,
	}
}

// CorrelationMonitor computes rolling cross-asset correlations and raises
// structural alerts when the universe starts moving as one trade.
type CorrelationMonitor struct {
	config CorrelationConfig
}

// NewCorrelationMonitor creates a monitor with the given config, filling
// zero fields from defaults.
func NewCorrelationMonitor(config CorrelationConfig) *CorrelationMonitor {
	def := DefaultCorrelationConfig()
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.PairWarning == 0 {
		config.PairWarning = def.PairWarning
	}
	if config.PortfolioWarning == 0 {
		config.PortfolioWarning = def.PortfolioWarning
	}
	if config.ExtremeThreshold == 0 {
		config.ExtremeThreshold = def.ExtremeThreshold
	}
	if config.ParallelMinPairs <= 0 {
		config.ParallelMinPairs = def.ParallelMinPairs
	}
	return &CorrelationMonitor{config: config}
}

// Update computes the correlation snapshot over the trailing window of the
// supplied per-asset return series. Symbols are ordered lexicographically
// so repeated runs over the same inputs are byte-identical.
func (m *CorrelationMonitor) Update(returns map[string][]float64) (*CorrelationSnapshot, error) {
	if len(returns) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 assets, have %d",
			ErrInsufficientData, len(returns))
	}

	symbols := make([]string, 0, len(returns))
	for sym := range returns {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		if len(returns[sym]) < m.config.Window {
			log.Warn().Str("symbol", sym).
				Int("observations", len(returns[sym])).
				Int("window", m.config.Window).
				Msg("Insufficient history for correlation window")
			return nil, fmt.Errorf("%w: %s has %d of %d observations",
				ErrInsufficientData, sym, len(returns[sym]), m.config.Window)
		}
	}

	n := len(symbols)
	windows := make([][]float64, n)
	for i, sym := range symbols {
		series := returns[sym]
		windows[i] = series[len(series)-m.config.Window:]
	}

	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1.0
	}

	type pair struct{ i, j int }
	pairs := make([]pair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, pair{i, j})
		}
	}

	// Pairwise cells are independent, so large universes fan out across a
	// worker pool; each worker writes disjoint cells.
	if len(pairs) >= m.config.ParallelMinPairs {
		var wg sync.WaitGroup
		const workers = 8
		chunk := (len(pairs) + workers - 1) / workers
		for w := 0; w < len(pairs); w += chunk {
			end := w + chunk
			if end > len(pairs) {
				end = len(pairs)
			}
			wg.Add(1)
			go func(ps []pair) {
				defer wg.Done()
				for _, p := range ps {
					corr := stats.Pearson(windows[p.i], windows[p.j])
					matrix[p.i][p.j] = corr
					matrix[p.j][p.i] = corr
				}
			}(pairs[w:end])
		}
		wg.Wait()
	} else {
		for _, p := range pairs {
			corr := stats.Pearson(windows[p.i], windows[p.j])
			matrix[p.i][p.j] = corr
			matrix[p.j][p.i] = corr
		}
	}

	return &CorrelationSnapshot{Symbols: symbols, Matrix: matrix, Window: m.config.Window}, nil
}

// CheckBreaches evaluates the snapshot against the three thresholds and
// returns structured alerts. A nil snapshot yields no alerts.
func (m *CorrelationMonitor) CheckBreaches(snapshot *CorrelationSnapshot) []domain.Alert {
	if snapshot == nil {
		return nil
	}

	var alerts []domain.Alert

	var hot []domain.CorrelatedPair
	snapshot.pairwise(func(i, j int, corr float64) {
		abs := corr
		if abs < 0 {
			abs = -abs
		}
		if abs > m.config.PairWarning {
			hot = append(hot, domain.CorrelatedPair{
				A:           snapshot.Symbols[i],
				B:           snapshot.Symbols[j],
				Correlation: corr,
			})
		}
	})
	if len(hot) > 0 {
		alert := domain.Alert{
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("%d asset pairs above %.2f correlation", len(hot), m.config.PairWarning),
			Pairs:    hot,
		}
		alerts = append(alerts, alert)
		log.Warn().Int("pairs", len(hot)).Msg(alert.Message)
	}

	avg := snapshot.AverageCorrelation()
	if avg > m.config.PortfolioWarning {
		alert := domain.Alert{
			Severity: domain.SeverityLevel1,
			Message:  fmt.Sprintf("portfolio average correlation %.2f above %.2f", avg, m.config.PortfolioWarning),
			AvgCorr:  avg,
		}
		alerts = append(alerts, alert)
		log.Warn().Float64("avg_corr", avg).Msg(alert.Message)
	}

	if snapshot.AllPairsAbove(m.config.ExtremeThreshold) {
		alert := domain.Alert{
			Severity: domain.SeverityLevel2,
			Message:  fmt.Sprintf("all pairs above %.2f: universe moving as one trade", m.config.ExtremeThreshold),
			AvgCorr:  avg,
		}
		alerts = append(alerts, alert)
		log.Error().Float64("avg_corr", avg).Msg(alert.Message)
	}

	return alerts
}

// ExtremeThreshold exposes the all-pairs threshold the controller checks.
func (m *CorrelationMonitor) ExtremeThreshold() float64 {
	return m.config.ExtremeThreshold
}
