// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package explain

import (
	"fmt"
	"math/rand/v2"
)

// maxExactFeatures bounds exhaustive coalition enumeration (2^d evaluations).
const maxExactFeatures = 12

// kernelExplainer replaces one feature at a time with background values and
// measures the change in the decision value. The raw effects are rescaled so
// they sum to f(x) - E[f(background)].
type kernelExplainer struct {
	score      scoreFunc
	background [][]float64
	baseValue  float64
}

func newKernelExplainer(score scoreFunc, _ []string, background [][]float64, kw kwargs) (Explainer, error) {
	bg := sampleRows(background, kw.int("nsamples", 100), uint64(kw.int("random_state", 0)))
	scores, err := score(bg)
	if err != nil {
		return nil, fmt.Errorf("score background: %w", err)
	}
	return &kernelExplainer{score: score, background: bg, baseValue: mean(scores)}, nil
}

func (k *kernelExplainer) Explain(row []float64) ([]float64, error) {
	d := len(row)
	rows := make([][]float64, 0, 1+d*len(k.background))
	rows = append(rows, row)
	for i := 0; i < d; i++ {
		for _, b := range k.background {
			z := append([]float64(nil), row...)
			if i < len(b) {
				z[i] = b[i]
			}
			rows = append(rows, z)
		}
	}
	scores, err := k.score(rows)
	if err != nil {
		return nil, err
	}

	fx := scores[0]
	n := len(k.background)
	phi := make([]float64, d)
	var total float64
	for i := 0; i < d; i++ {
		occluded := mean(scores[1+i*n : 1+(i+1)*n])
		phi[i] = fx - occluded
		total += phi[i]
	}

	gap := fx - k.baseValue
	if total != 0 && gap != 0 {
		scale := gap / total
		for i := range phi {
			phi[i] *= scale
		}
	}
	return phi, nil
}

// permutationExplainer averages marginal contributions along random feature
// orderings, walking each ordering from a background row to the explained row.
type permutationExplainer struct {
	score        scoreFunc
	background   [][]float64
	permutations int
	rng          *rand.Rand
}

func newPermutationExplainer(score scoreFunc, _ []string, background [][]float64, kw kwargs) (Explainer, error) {
	seed := uint64(kw.int("random_state", 0))
	return &permutationExplainer{
		score:        score,
		background:   background,
		permutations: max(kw.int("npermutations", 10), 1),
		rng:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

func (p *permutationExplainer) Explain(row []float64) ([]float64, error) {
	return permutationShapley(p.score, row, p.background, p.permutations, p.rng)
}

func permutationShapley(score scoreFunc, row []float64, background [][]float64, permutations int, rng *rand.Rand) ([]float64, error) {
	d := len(row)
	phi := make([]float64, d)
	for m := 0; m < permutations; m++ {
		order := rng.Perm(d)
		base := background[m%len(background)]

		z := make([]float64, d)
		copy(z, base)
		path := make([][]float64, 0, d+1)
		path = append(path, append([]float64(nil), z...))
		for _, idx := range order {
			z[idx] = row[idx]
			path = append(path, append([]float64(nil), z...))
		}

		scores, err := score(path)
		if err != nil {
			return nil, err
		}
		for step, idx := range order {
			phi[idx] += scores[step+1] - scores[step]
		}
	}
	for i := range phi {
		phi[i] /= float64(permutations)
	}
	return phi, nil
}

// exactExplainer computes Shapley values over every coalition against an
// all-zero baseline. Wider inputs fall back to permutation sampling against
// the same baseline.
type exactExplainer struct {
	score        scoreFunc
	permutations int
	rng          *rand.Rand
}

func newExactExplainer(score scoreFunc, _ []string, _ [][]float64, kw kwargs) (Explainer, error) {
	seed := uint64(kw.int("random_state", 0))
	return &exactExplainer{
		score:        score,
		permutations: max(kw.int("npermutations", 20), 1),
		rng:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

func (e *exactExplainer) Explain(row []float64) ([]float64, error) {
	d := len(row)
	if d == 0 {
		return nil, nil
	}
	if d > maxExactFeatures {
		zero := [][]float64{make([]float64, d)}
		return permutationShapley(e.score, row, zero, e.permutations, e.rng)
	}

	coalitions := 1 << d
	rows := make([][]float64, coalitions)
	for mask := 0; mask < coalitions; mask++ {
		z := make([]float64, d)
		for i := 0; i < d; i++ {
			if mask&(1<<i) != 0 {
				z[i] = row[i]
			}
		}
		rows[mask] = z
	}
	v, err := e.score(rows)
	if err != nil {
		return nil, err
	}

	// weight[s] = s!(d-s-1)!/d!
	weight := make([]float64, d)
	for s := 0; s < d; s++ {
		weight[s] = 1 / (float64(d) * binomial(d-1, s))
	}

	phi := make([]float64, d)
	for mask := 0; mask < coalitions; mask++ {
		size := popcount(mask)
		for i := 0; i < d; i++ {
			if mask&(1<<i) != 0 {
				continue
			}
			phi[i] += weight[size] * (v[mask|1<<i] - v[mask])
		}
	}
	return phi, nil
}

func binomial(n, k int) float64 {
	if k < 0 || k > n {
		return 0
	}
	r := 1.0
	for i := 1; i <= k; i++ {
		r = r * float64(n-k+i) / float64(i)
	}
	return r
}

func popcount(x int) int {
	n := 0
	for x != 0 {
		x &= x - 1
		n++
	}
	return n
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// sampleRows returns at most n rows, chosen deterministically from seed.
func sampleRows(rows [][]float64, n int, seed uint64) [][]float64 {
	if n <= 0 || len(rows) <= n {
		return rows
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	idx := rng.Perm(len(rows))[:n]
	out := make([][]float64, n)
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}
