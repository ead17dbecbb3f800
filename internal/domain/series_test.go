package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeriesBoundedFIFO(t *testing.T) {
	s := NewSeries(3)
	s.Push(1)
	s.Push(2)
	s.Push(3)
	assert.True(t, s.Full())
	assert.Equal(t, []float64{1, 2, 3}, s.Values())

	// Overflow drops the oldest.
	s.Push(4)
	assert.Equal(t, []float64{2, 3, 4}, s.Values())
	assert.Equal(t, 3, s.Len())
}

func TestSeriesFromTrimsToCapacity(t *testing.T) {
	s := SeriesFrom(2, []float64{1, 2, 3, 4})
	assert.Equal(t, []float64{3, 4}, s.Values())
}

func TestSeriesLast(t *testing.T) {
	s := SeriesFrom(5, []float64{1, 2, 3})
	assert.Equal(t, []float64{2, 3}, s.Last(2))
	assert.Equal(t, []float64{1, 2, 3}, s.Last(10))
}

func TestSeriesAllBelow(t *testing.T) {
	s := SeriesFrom(5, []float64{0.5, 0.01, 0.01, 0.01})

	assert.True(t, s.AllBelow(3, 0.02))
	assert.False(t, s.AllBelow(4, 0.02), "older breach inside the window")
	assert.False(t, s.AllBelow(5, 0.02), "fewer observations than required")

	// Threshold is exclusive: a value exactly at it does not count as below.
	eq := SeriesFrom(3, []float64{0.02, 0.02, 0.02})
	assert.False(t, eq.AllBelow(3, 0.02))
}

func TestSeriesMean(t *testing.T) {
	assert.Equal(t, 0.0, NewSeries(3).Mean())
	assert.InDelta(t, 2.0, SeriesFrom(3, []float64{1, 2, 3}).Mean(), 1e-12)
}
