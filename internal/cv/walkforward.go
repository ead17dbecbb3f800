package cv

import (
	"github.com/rs/zerolog/log"
)

// WalkForwardConfig holds rolling-window split parameters, in periods.
type WalkForwardConfig struct {
	TrainSize int `yaml:"train_size"` // 756 (~3 years)
	TestSize  int `yaml:"test_size"`  // 126 (~6 months)
	StepSize  int `yaml:"step_size"`  // 63 (~3 months)
	PurgeGap  int `yaml:"purge_gap"`  // 21 trading days
}

// DefaultWalkForwardConfig returns the production window sizes.
func DefaultWalkForwardConfig() WalkForwardConfig {
	return WalkForwardConfig{TrainSize: 756, TestSize: 126, StepSize: 63, PurgeGap: 21}
}

// PurgedWalkForward is the rolling-window splitter: fixed train and test
// sizes advancing by a fixed step, with a purge gap removed from the end
// of each training window.
type PurgedWalkForward struct {
	config WalkForwardConfig
}

// NewPurgedWalkForward creates a walk-forward splitter.
func NewPurgedWalkForward(config WalkForwardConfig) *PurgedWalkForward {
	if config.TrainSize <= 0 {
		config = DefaultWalkForwardConfig()
	}
	return &PurgedWalkForward{config: config}
}

// Split generates rolling folds until the next test window would run past
// nSamples. The training window ends purge_gap periods before the test
// window starts.
func (wf *PurgedWalkForward) Split(nSamples int) ([]Fold, error) {
	var folds []Fold

	for start := wf.config.TrainSize; start+wf.config.TestSize <= nSamples; start += wf.config.StepSize {
		trainEnd := start - wf.config.PurgeGap
		trainStart := trainEnd - wf.config.TrainSize
		if trainStart < 0 {
			trainStart = 0
		}

		fold := Fold{
			TrainIndices: indexRange(trainStart, trainEnd),
			TestIndices:  indexRange(start, start+wf.config.TestSize),
		}
		if err := validate(len(folds), fold); err != nil {
			return nil, err
		}
		folds = append(folds, fold)
	}

	log.Debug().Int("folds", len(folds)).Int("samples", nSamples).
		Msg("Purged walk-forward split complete")
	return folds, nil
}

// NumSplits returns the fold count for n samples.
func (wf *PurgedWalkForward) NumSplits(nSamples int) int {
	if nSamples < wf.config.TrainSize+wf.config.TestSize {
		return 0
	}
	return (nSamples-wf.config.TrainSize-wf.config.TestSize)/wf.config.StepSize + 1
}

func indexRange(start, end int) []int {
	if end <= start {
		return nil
	}
	out := make([]int, end-start)
	for i := range out {
		out[i] = start + i
	}
	return out
}
