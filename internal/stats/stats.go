// Package stats provides the small set of statistics the decision engine
// needs: rank correlation for IC, pairwise correlation matrices, the
// two-sample Kolmogorov-Smirnov statistic for drift, and a Welch t-test
// for model promotion gating.
package stats

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean of xs, 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the sample standard deviation of xs.
func StdDev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0.0
	}
	m := Mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// Pearson returns the Pearson correlation of two equal-length series.
// Returns 0 when either series is degenerate.
func Pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n == 0 || n != len(ys) {
		return 0.0
	}
	mx, my := Mean(xs), Mean(ys)
	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0.0
	}
	return sxy / math.Sqrt(sxx*syy)
}

// ranks returns fractional ranks (average rank for ties), 1-based.
func ranks(xs []float64) []float64 {
	n := len(xs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2.0 + 1.0
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

// Spearman returns the Spearman rank correlation between predictions and
// outcomes. This is the IC definition used throughout the engine.
func Spearman(xs, ys []float64) float64 {
	if len(xs) < 2 || len(xs) != len(ys) {
		return 0.0
	}
	return Pearson(ranks(xs), ranks(ys))
}

// KolmogorovSmirnov returns the two-sample KS statistic: the maximum
// distance between the empirical CDFs of a and b. Returns 0 when either
// sample is empty.
func KolmogorovSmirnov(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	sa := append([]float64(nil), a...)
	sb := append([]float64(nil), b...)
	sort.Float64s(sa)
	sort.Float64s(sb)

	var i, j int
	maxDist := 0.0
	for i < len(sa) && j < len(sb) {
		if sa[i] <= sb[j] {
			i++
		} else {
			j++
		}
		fa := float64(i) / float64(len(sa))
		fb := float64(j) / float64(len(sb))
		if d := math.Abs(fa - fb); d > maxDist {
			maxDist = d
		}
	}
	return maxDist
}

// WelchT returns the Welch two-sample t statistic and degrees of freedom
// for samples a and b. Degenerate inputs return (0, 0).
func WelchT(a, b []float64) (t float64, df float64) {
	na, nb := float64(len(a)), float64(len(b))
	if na < 2 || nb < 2 {
		return 0.0, 0.0
	}
	va := StdDev(a) * StdDev(a)
	vb := StdDev(b) * StdDev(b)
	se2 := va/na + vb/nb
	if se2 == 0 {
		return 0.0, 0.0
	}
	t = (Mean(a) - Mean(b)) / math.Sqrt(se2)
	df = se2 * se2 / (va*va/(na*na*(na-1)) + vb*vb/(nb*nb*(nb-1)))
	return t, df
}

// WelchTPValue returns the one-sided p-value for mean(a) > mean(b) under
// a Welch t-test.
func WelchTPValue(a, b []float64) float64 {
	t, df := WelchT(a, b)
	if df <= 0 {
		return 1.0
	}
	return studentTSF(t, df)
}

// studentTSF is the survival function P(T > t) of the Student t
// distribution with df degrees of freedom, via the regularized
// incomplete beta function.
func studentTSF(t, df float64) float64 {
	x := df / (df + t*t)
	p := 0.5 * regIncBeta(df/2.0, 0.5, x)
	if t < 0 {
		return 1.0 - p
	}
	return p
}

// regIncBeta computes the regularized incomplete beta function I_x(a, b)
// using the continued fraction expansion (Numerical Recipes form).
func regIncBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0.0
	}
	if x >= 1 {
		return 1.0
	}
	lnFront := lgamma(a+b) - lgamma(a) - lgamma(b) + a*math.Log(x) + b*math.Log(1-x)
	front := math.Exp(lnFront)
	if x < (a+1)/(a+b+2) {
		return front * betaCF(a, b, x) / a
	}
	return 1.0 - front*betaCF(b, a, 1-x)/b
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

func betaCF(a, b, x float64) float64 {
	const maxIter = 200
	const eps = 1e-12
	const fpMin = 1e-300

	qab, qap, qam := a+b, a+1, a-1
	c := 1.0
	d := 1.0 - qab*x/qap
	if math.Abs(d) < fpMin {
		d = fpMin
	}
	d = 1.0 / d
	h := d
	for m := 1; m <= maxIter; m++ {
		fm := float64(m)
		m2 := 2 * fm
		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1.0 + aa*d
		if math.Abs(d) < fpMin {
			d = fpMin
		}
		c = 1.0 + aa/c
		if math.Abs(c) < fpMin {
			c = fpMin
		}
		d = 1.0 / d
		h *= d * c
		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1.0 + aa*d
		if math.Abs(d) < fpMin {
			d = fpMin
		}
		c = 1.0 + aa/c
		if math.Abs(c) < fpMin {
			c = fpMin
		}
		d = 1.0 / d
		del := d * c
		h *= del
		if math.Abs(del-1.0) < eps {
			break
		}
	}
	return h
}
