// Package cv provides leakage-resistant cross-validation splitters for
// time-ordered samples: purged walk-forward and combinatorial purged CV.
package cv

import "fmt"

// Fold is one train/test split. Both index sets are sorted ascending and
// disjoint; training indices within the purge gap of a test boundary have
// been removed.
type Fold struct {
	TrainIndices []int `json:"train_indices"`
	TestIndices  []int `json:"test_indices"`
}

// DegenerateFoldError reports a fold whose train or test set came out
// empty. It is always surfaced to the caller: training on zero samples
// would silently produce a meaningless model, so averaged metrics must
// never absorb such a fold.
type DegenerateFoldError struct {
	FoldIndex int
	TrainSize int
	TestSize  int
}

func (e *DegenerateFoldError) Error() string {
	return fmt.Sprintf("degenerate fold %d: train=%d test=%d samples", e.FoldIndex, e.TrainSize, e.TestSize)
}

// Splitter is the interchangeable splitting strategy interface.
type Splitter interface {
	// Split partitions n time-ordered samples into leakage-safe folds.
	Split(nSamples int) ([]Fold, error)
	// NumSplits returns the number of folds Split will produce for n
	// samples, without materializing them.
	NumSplits(nSamples int) int
}

// validate rejects degenerate folds.
func validate(index int, fold Fold) error {
	if len(fold.TrainIndices) == 0 || len(fold.TestIndices) == 0 {
		return &DegenerateFoldError{
			FoldIndex: index,
			TrainSize: len(fold.TrainIndices),
			TestSize:  len(fold.TestIndices),
		}
	}
	return nil
}
