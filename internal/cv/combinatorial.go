package cv

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// CombinatorialConfig holds combinatorial purged CV parameters.
type CombinatorialConfig struct {
	NSplits         int     `yaml:"n_splits"`         // 6 -> 7 contiguous groups
	TestGroups      int     `yaml:"test_groups"`      // k=2 groups per fold -> C(7,2)=21 folds
	PurgeGap        int     `yaml:"purge_gap"`        // 21 periods around each test boundary
	EmbargoFraction float64 `yaml:"embargo_fraction"` // 0.05 of each test group's span
	Workers         int     `yaml:"workers"`          // fold construction pool size
}

// DefaultCombinatorialConfig returns the production CPCV parameters.
func DefaultCombinatorialConfig() CombinatorialConfig {
	return CombinatorialConfig{
		NSplits:         6,
		TestGroups:      2,
		PurgeGap:        21,
		EmbargoFraction: 0.05,
		Workers:         4,
	}
}

// CombinatorialPurged partitions the index range into n_splits+1
// contiguous groups and enumerates every combination of test_groups of
// them as a test set, with the complement as training. Purge and embargo
// exclusions are applied around every test group boundary.
//
// Folds are independent, so construction fans out over a bounded worker
// pool; results are merged back in combination order so output is
// deterministic regardless of scheduling.
type CombinatorialPurged struct {
	config CombinatorialConfig
}

// NewCombinatorialPurged creates a CPCV splitter.
func NewCombinatorialPurged(config CombinatorialConfig) *CombinatorialPurged {
	if config.NSplits <= 0 {
		config = DefaultCombinatorialConfig()
	}
	if config.Workers <= 0 {
		config.Workers = DefaultCombinatorialConfig().Workers
	}
	return &CombinatorialPurged{config: config}
}

// group is a contiguous index span [start, end).
type group struct {
	start, end int
}

func (g group) size() int { return g.end - g.start }

// Split generates every combinatorial fold. Any fold whose train or test
// set comes out empty fails the whole split with a DegenerateFoldError;
// silently skipping it would corrupt averaged metrics downstream.
func (cp *CombinatorialPurged) Split(nSamples int) ([]Fold, error) {
	nGroups := cp.config.NSplits + 1
	groups := partition(nSamples, nGroups)
	combos := combinations(nGroups, cp.config.TestGroups)

	folds := make([]Fold, len(combos))
	errs := make([]error, len(combos))

	var wg sync.WaitGroup
	sem := make(chan struct{}, cp.config.Workers)
	for i, combo := range combos {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, testCombo []int) {
			defer wg.Done()
			defer func() { <-sem }()
			fold := cp.buildFold(groups, testCombo, nSamples)
			if err := validate(idx, fold); err != nil {
				errs[idx] = err
				return
			}
			folds[idx] = fold
		}(i, combo)
	}
	wg.Wait()

	// Deterministic: report the first failing fold by combination order.
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	log.Debug().Int("folds", len(folds)).Int("groups", nGroups).
		Int("samples", nSamples).Msg("Combinatorial purged split complete")
	return folds, nil
}

// NumSplits returns C(n_splits+1, test_groups).
func (cp *CombinatorialPurged) NumSplits(nSamples int) int {
	return binomial(cp.config.NSplits+1, cp.config.TestGroups)
}

// buildFold assembles one fold for the selected test groups. Training
// excludes every index inside a test group, every index within purge_gap
// of a test group boundary, and the trailing embargo span after each test
// group (embargo_fraction of the group's length, beyond the purge gap) so
// information cannot bleed into training sets that follow the test window.
func (cp *CombinatorialPurged) buildFold(groups []group, testCombo []int, nSamples int) Fold {
	inTest := make([]bool, len(groups))
	for _, g := range testCombo {
		inTest[g] = true
	}

	type span struct{ lo, hi int } // inclusive exclusion zone
	var excluded []span
	var test []int
	for gi, g := range groups {
		if !inTest[gi] {
			continue
		}
		for i := g.start; i < g.end; i++ {
			test = append(test, i)
		}
		embargo := int(cp.config.EmbargoFraction * float64(g.size()))
		excluded = append(excluded, span{
			lo: g.start - cp.config.PurgeGap,
			hi: g.end - 1 + cp.config.PurgeGap + embargo,
		})
	}

	var train []int
	for gi, g := range groups {
		if inTest[gi] {
			continue
		}
	indexLoop:
		for i := g.start; i < g.end; i++ {
			for _, z := range excluded {
				if i >= z.lo && i <= z.hi {
					continue indexLoop
				}
			}
			train = append(train, i)
		}
	}

	sort.Ints(test)
	sort.Ints(train)
	return Fold{TrainIndices: train, TestIndices: test}
}

// partition splits [0, n) into count contiguous groups; the final group
// absorbs the remainder.
func partition(n, count int) []group {
	size := n / count
	groups := make([]group, count)
	for i := 0; i < count; i++ {
		start := i * size
		end := start + size
		if i == count-1 {
			end = n
		}
		groups[i] = group{start: start, end: end}
	}
	return groups
}

// combinations enumerates all k-subsets of [0, n) in lexicographic order.
func combinations(n, k int) [][]int {
	var out [][]int
	combo := make([]int, k)
	var walk func(start, depth int)
	walk = func(start, depth int) {
		if depth == k {
			out = append(out, append([]int(nil), combo...))
			return
		}
		for i := start; i <= n-(k-depth); i++ {
			combo[depth] = i
			walk(i+1, depth+1)
		}
	}
	if k > 0 && k <= n {
		walk(0, 0)
	}
	return out
}

func binomial(n, k int) int {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	result := 1
	for i := 0; i < k; i++ {
		result = result * (n - i) / (i + 1)
	}
	return result
}
