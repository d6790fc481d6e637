// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package explain

import (
	"errors"
	"math"
	"math/rand/v2"
)

var errSingularSystem = errors.New("local model is singular")

// tabularExplainer fits a weighted ridge regression of the decision value on
// Gaussian perturbations around the row, scaled by background deviations.
// Coefficients are effects per standard deviation.
type tabularExplainer struct {
	score       scoreFunc
	columns     []string
	std         []float64
	samples     int
	kernelWidth float64
	alpha       float64
	numFeatures int
	seed        uint64
}

func newTabularExplainer(score scoreFunc, columns []string, background [][]float64, kw kwargs) (Explainer, error) {
	d := len(columns)
	std := make([]float64, d)
	for j := 0; j < d; j++ {
		var sum, sq float64
		for _, b := range background {
			if j < len(b) {
				sum += b[j]
			}
		}
		mu := sum / float64(len(background))
		for _, b := range background {
			if j < len(b) {
				sq += (b[j] - mu) * (b[j] - mu)
			}
		}
		std[j] = math.Sqrt(sq / float64(len(background)))
		if std[j] == 0 {
			std[j] = 1
		}
	}

	return &tabularExplainer{
		score:       score,
		columns:     columns,
		std:         std,
		samples:     max(kw.int("num_samples", 500), d+2),
		kernelWidth: kw.float("kernel_width", 0.75*math.Sqrt(float64(d))),
		alpha:       kw.float("alpha", 1),
		numFeatures: kw.int("num_features", 10),
		seed:        uint64(kw.int("random_state", 0)),
	}, nil
}

// Explain implements Explainer.
func (t *tabularExplainer) Explain(row []float64) ([]float64, error) {
	d := len(row)
	rng := rand.New(rand.NewPCG(t.seed, t.seed^0x9e3779b97f4a7c15))

	// The first sample is the row itself.
	scaled := make([][]float64, t.samples)
	rows := make([][]float64, t.samples)
	for k := 0; k < t.samples; k++ {
		u := make([]float64, d)
		z := make([]float64, d)
		for j := 0; j < d; j++ {
			if k > 0 {
				u[j] = rng.NormFloat64()
			}
			z[j] = row[j] + u[j]*t.std[j]
		}
		scaled[k] = u
		rows[k] = z
	}

	y, err := t.score(rows)
	if err != nil {
		return nil, err
	}

	weights := make([]float64, t.samples)
	width2 := t.kernelWidth * t.kernelWidth
	if width2 == 0 {
		width2 = 1
	}
	for k, u := range scaled {
		var dist2 float64
		for _, v := range u {
			dist2 += v * v
		}
		weights[k] = math.Exp(-dist2 / width2)
	}

	beta, err := weightedRidge(scaled, y, weights, t.alpha)
	if err != nil {
		return nil, err
	}
	// beta[0] is the intercept
	return beta[1:], nil
}

// Rank implements Ranker.
func (t *tabularExplainer) Rank(row []float64, n int) ([]Attribution, error) {
	values, err := t.Explain(row)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = t.numFeatures
	}
	return rankAttributions(Attributions(t.columns, values), n), nil
}

// weightedRidge solves (A'WA + alpha*I')b = A'Wy where A has a leading
// intercept column that is not regularized.
func weightedRidge(x [][]float64, y, w []float64, alpha float64) ([]float64, error) {
	if len(x) == 0 {
		return nil, errSingularSystem
	}
	p := len(x[0]) + 1
	ata := make([][]float64, p)
	for i := range ata {
		ata[i] = make([]float64, p+1)
	}
	for k, xr := range x {
		a := make([]float64, p)
		a[0] = 1
		copy(a[1:], xr)
		for i := 0; i < p; i++ {
			for j := 0; j < p; j++ {
				ata[i][j] += w[k] * a[i] * a[j]
			}
			ata[i][p] += w[k] * a[i] * y[k]
		}
	}
	for i := 1; i < p; i++ {
		ata[i][i] += alpha
	}
	return solve(ata)
}

// solve performs Gaussian elimination with partial pivoting on an augmented matrix.
func solve(m [][]float64) ([]float64, error) {
	n := len(m)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(m[pivot][col]) < 1e-12 {
			return nil, errSingularSystem
		}
		m[col], m[pivot] = m[pivot], m[col]
		for r := col + 1; r < n; r++ {
			f := m[r][col] / m[col][col]
			for c := col; c <= n; c++ {
				m[r][c] -= f * m[col][c]
			}
		}
	}
	out := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		s := m[r][n]
		for c := r + 1; c < n; c++ {
			s -= m[r][c] * out[c]
		}
		out[r] = s / m[r][r]
	}
	return out, nil
}
