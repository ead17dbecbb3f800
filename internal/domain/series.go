package domain

import "encoding/json"

// Series is a fixed-capacity FIFO of float observations. Appending past
// capacity drops the oldest value, keeping long-running deployments
// memory-stable.
type Series struct {
	values []float64
	cap    int
}

// NewSeries creates a bounded series with the given capacity.
func NewSeries(capacity int) *Series {
	if capacity < 1 {
		capacity = 1
	}
	return &Series{values: make([]float64, 0, capacity), cap: capacity}
}

// SeriesFrom creates a bounded series seeded with values, trimming to the
// most recent capacity observations.
func SeriesFrom(capacity int, values []float64) *Series {
	s := NewSeries(capacity)
	for _, v := range values {
		s.Push(v)
	}
	return s
}

// Push appends an observation, evicting the oldest when full.
func (s *Series) Push(v float64) {
	if len(s.values) == s.cap {
		copy(s.values, s.values[1:])
		s.values[len(s.values)-1] = v
		return
	}
	s.values = append(s.values, v)
}

func (s *Series) Len() int { return len(s.values) }

func (s *Series) Cap() int { return s.cap }

func (s *Series) Full() bool { return len(s.values) == s.cap }

// Values returns a copy of the buffered observations, oldest first.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Last returns the most recent n observations, oldest first. When fewer
// than n are buffered, all are returned.
func (s *Series) Last(n int) []float64 {
	if n >= len(s.values) {
		return s.Values()
	}
	out := make([]float64, n)
	copy(out, s.values[len(s.values)-n:])
	return out
}

// Mean returns the arithmetic mean of the buffered observations.
func (s *Series) Mean() float64 {
	if len(s.values) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range s.values {
		sum += v
	}
	return sum / float64(len(s.values))
}

// AllBelow reports whether every one of the most recent n observations is
// strictly below threshold. Returns false when fewer than n are buffered.
func (s *Series) AllBelow(n int, threshold float64) bool {
	if len(s.values) < n {
		return false
	}
	for _, v := range s.values[len(s.values)-n:] {
		if v >= threshold {
			return false
		}
	}
	return true
}

type seriesJSON struct {
	Cap    int       `json:"cap"`
	Values []float64 `json:"values"`
}

// MarshalJSON encodes the series as its capacity plus buffered values so
// bounded histories survive persistence round trips.
func (s *Series) MarshalJSON() ([]byte, error) {
	return json.Marshal(seriesJSON{Cap: s.cap, Values: s.Values()})
}

func (s *Series) UnmarshalJSON(data []byte) error {
	var sj seriesJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return err
	}
	restored := SeriesFrom(sj.Cap, sj.Values)
	*s = *restored
	return nil
}
