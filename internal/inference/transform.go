// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package inference

import (
	"fmt"
	"math"
	"strings"
)

// Transformer is a fitted preprocessing step.
//
// Transform returns a new frame and must not modify its input. Columns the
// step was fitted on but that are absent from the frame are filled with a
// neutral value rather than failing the batch.
type Transformer interface {
	Kind() string
	Transform(f *Frame, n *Normalizer) (*Frame, error)
}

// Step is a preprocessing stage of a pipeline, identified by its graph node.
type Step struct {
	NodeID      string
	Transformer Transformer
}

// Transformer kinds.
const (
	KindStandardScaler = "standard_scaler"
	KindMinMaxScaler   = "minmax_scaler"
	KindSimpleImputer  = "simple_imputer"
	KindOneHot         = "one_hot"
	KindPCA            = "pca"
)

// StandardScaler centers columns on their fitted mean and divides by scale.
type StandardScaler struct {
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
}

// Kind implements Transformer.
func (s *StandardScaler) Kind() string { return KindStandardScaler }

// Transform implements Transformer. Missing columns become zero, the scaled mean.
func (s *StandardScaler) Transform(f *Frame, n *Normalizer) (*Frame, error) {
	out := f.Clone()
	for j, col := range s.Columns {
		vals := make([]Value, out.Len())
		raw, ok := n.columnValues(out, col)
		for r := range vals {
			if !ok {
				vals[r] = Num(0)
				continue
			}
			scale := s.Scale[j]
			if scale == 0 {
				scale = 1
			}
			vals[r] = Num((raw[r] - s.Mean[j]) / scale)
		}
		out.SetColumn(col, vals)
	}
	return out, nil
}

// MinMaxScaler maps columns into [0, 1] using fitted bounds.
type MinMaxScaler struct {
	Columns []string  `json:"columns"`
	Min     []float64 `json:"min"`
	Max     []float64 `json:"max"`
}

// Kind implements Transformer.
func (s *MinMaxScaler) Kind() string { return KindMinMaxScaler }

// Transform implements Transformer. Missing columns become zero.
func (s *MinMaxScaler) Transform(f *Frame, n *Normalizer) (*Frame, error) {
	out := f.Clone()
	for j, col := range s.Columns {
		vals := make([]Value, out.Len())
		raw, ok := n.columnValues(out, col)
		span := s.Max[j] - s.Min[j]
		for r := range vals {
			if !ok || span == 0 {
				vals[r] = Num(0)
				continue
			}
			vals[r] = Num((raw[r] - s.Min[j]) / span)
		}
		out.SetColumn(col, vals)
	}
	return out, nil
}

// SimpleImputer replaces missing and non-finite values with fitted fill values.
type SimpleImputer struct {
	Columns []string  `json:"columns"`
	Fill    []float64 `json:"fill"`
}

// Kind implements Transformer.
func (s *SimpleImputer) Kind() string { return KindSimpleImputer }

// Transform implements Transformer. Missing columns are created with the fill value.
func (s *SimpleImputer) Transform(f *Frame, n *Normalizer) (*Frame, error) {
	out := f.Clone()
	for j, col := range s.Columns {
		vals := make([]Value, out.Len())
		i, ok := out.Index(col)
		for r := range vals {
			if !ok {
				vals[r] = Num(s.Fill[j])
				continue
			}
			v := out.Rows[r][i]
			if v.IsText && strings.TrimSpace(v.Str) == "" {
				vals[r] = Num(s.Fill[j])
				continue
			}
			x := n.Coerce(col, v)
			if math.IsNaN(x) || math.IsInf(x, 0) {
				x = s.Fill[j]
			}
			vals[r] = Num(x)
		}
		out.SetColumn(col, vals)
	}
	return out, nil
}

// OneHotEncoder replaces categorical columns with one indicator column per
// fitted category, named column_category. Unseen categories encode as all zeros.
type OneHotEncoder struct {
	Columns    []string   `json:"columns"`
	Categories [][]string `json:"categories"`
}

// Kind implements Transformer.
func (o *OneHotEncoder) Kind() string { return KindOneHot }

// Transform implements Transformer.
func (o *OneHotEncoder) Transform(f *Frame, _ *Normalizer) (*Frame, error) {
	out := f.Clone()
	for j, col := range o.Columns {
		i, ok := out.Index(col)
		for _, cat := range o.Categories[j] {
			vals := make([]Value, out.Len())
			for r := range vals {
				vals[r] = Num(0)
				if ok && out.Rows[r][i].String() == cat {
					vals[r] = Num(1)
				}
			}
			out.SetColumn(col+"_"+cat, vals)
		}
	}
	out.DropColumns(o.Columns...)
	return out, nil
}

// PCA projects fitted columns onto principal components named pc_0..pc_k.
// Missing input columns contribute nothing after centering.
type PCA struct {
	Columns    []string    `json:"columns"`
	Mean       []float64   `json:"mean"`
	Components [][]float64 `json:"components"`
}

// Kind implements Transformer.
func (p *PCA) Kind() string { return KindPCA }

// Transform implements Transformer.
func (p *PCA) Transform(f *Frame, n *Normalizer) (*Frame, error) {
	out := f.Clone()
	centered := make([][]float64, len(p.Columns))
	for j, col := range p.Columns {
		raw, ok := n.columnValues(out, col)
		c := make([]float64, out.Len())
		if ok {
			for r := range c {
				c[r] = raw[r] - p.Mean[j]
			}
		}
		centered[j] = c
	}
	out.DropColumns(p.Columns...)
	for k, comp := range p.Components {
		vals := make([]Value, out.Len())
		for r := range vals {
			var sum float64
			for j := range p.Columns {
				sum += comp[j] * centered[j][r]
			}
			vals[r] = Num(sum)
		}
		out.SetColumn(fmt.Sprintf("pc_%d", k), vals)
	}
	return out, nil
}
