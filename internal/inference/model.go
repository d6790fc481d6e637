// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package inference

import "math"

// Model labels.
const (
	AnomalyLabel = -1
	NormalLabel  = 1
)

// Model kinds.
const (
	KindZScore = "zscore"
	KindLinear = "linear"
)

// Model is a fitted anomaly detector.
//
// Score returns a decision value per row: negative values are anomalous,
// and larger values are more normal. Predict returns one label per row.
// Both select their fitted features from x by column name, treating absent
// columns as the fitted center.
type Model interface {
	Kind() string
	Features() []string
	Score(x [][]float64, columns []string) ([]float64, error)
	Predict(x [][]float64, columns []string) ([]int, error)
}

// IsAnomaly reports whether a label marks an anomaly.
func IsAnomaly(label int) bool { return label == AnomalyLabel }

// labelsFromScores converts decision values to labels.
func labelsFromScores(scores []float64) []int {
	labels := make([]int, len(scores))
	for i, s := range scores {
		if s < 0 {
			labels[i] = AnomalyLabel
		} else {
			labels[i] = NormalLabel
		}
	}
	return labels
}

// project selects features from x by name. Absent features take fill[j].
func project(x [][]float64, columns, features []string, fill []float64) [][]float64 {
	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		pos[c] = i
	}
	out := make([][]float64, len(x))
	for r, row := range x {
		nr := make([]float64, len(features))
		for j, feat := range features {
			if i, ok := pos[feat]; ok && i < len(row) {
				nr[j] = row[i]
			} else if fill != nil {
				nr[j] = fill[j]
			}
		}
		out[r] = nr
	}
	return out
}

// ZScoreModel flags rows whose largest absolute z-score exceeds Threshold.
type ZScoreModel struct {
	Columns   []string  `json:"columns"`
	Mean      []float64 `json:"mean"`
	Std       []float64 `json:"std"`
	Threshold float64   `json:"threshold"`
}

// Kind implements Model.
func (m *ZScoreModel) Kind() string { return KindZScore }

// Features implements Model.
func (m *ZScoreModel) Features() []string { return m.Columns }

// Score implements Model. The score is Threshold minus the largest |z|.
func (m *ZScoreModel) Score(x [][]float64, columns []string) ([]float64, error) {
	px := project(x, columns, m.Columns, m.Mean)
	scores := make([]float64, len(px))
	for r, row := range px {
		var maxZ float64
		for j, v := range row {
			std := m.Std[j]
			if std == 0 {
				std = 1
			}
			z := math.Abs((v - m.Mean[j]) / std)
			if z > maxZ {
				maxZ = z
			}
		}
		scores[r] = m.Threshold - maxZ
	}
	return scores, nil
}

// Predict implements Model.
func (m *ZScoreModel) Predict(x [][]float64, columns []string) ([]int, error) {
	scores, err := m.Score(x, columns)
	if err != nil {
		return nil, err
	}
	return labelsFromScores(scores), nil
}

// LinearModel is a linear decision function w.x + b.
type LinearModel struct {
	Columns []string  `json:"columns"`
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// Kind implements Model.
func (m *LinearModel) Kind() string { return KindLinear }

// Features implements Model.
func (m *LinearModel) Features() []string { return m.Columns }

// Score implements Model. Absent features contribute zero.
func (m *LinearModel) Score(x [][]float64, columns []string) ([]float64, error) {
	px := project(x, columns, m.Columns, nil)
	scores := make([]float64, len(px))
	for r, row := range px {
		s := m.Bias
		for j, v := range row {
			s += m.Weights[j] * v
		}
		scores[r] = s
	}
	return scores, nil
}

// Predict implements Model.
func (m *LinearModel) Predict(x [][]float64, columns []string) ([]int, error) {
	scores, err := m.Score(x, columns)
	if err != nil {
		return nil, err
	}
	return labelsFromScores(scores), nil
}
