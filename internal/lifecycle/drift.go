package lifecycle

import (
	"github.com/sawpanic/riskrun/internal/stats"
)

// DetectDrift compares the live distribution of each model input feature
// against its training-time distribution and returns the KS statistic per
// feature. Only the most recent DriftWindow live observations are used.
// Features missing from either side are skipped: drift cannot be judged
// without both samples.
func (m *Manager) DetectDrift(training, live map[string][]float64) map[string]float64 {
	scores := make(map[string]float64)
	for feature, trained := range training {
		current, ok := live[feature]
		if !ok || len(trained) == 0 || len(current) == 0 {
			continue
		}
		if len(current) > m.config.DriftWindow {
			current = current[len(current)-m.config.DriftWindow:]
		}
		scores[feature] = stats.KolmogorovSmirnov(trained, current)
	}
	return scores
}
