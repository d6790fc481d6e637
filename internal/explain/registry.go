// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package explain

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tomtom215/packetlens/internal/inference"
)

// ErrNoBackground is returned when a variant needs background data and the
// pipeline has no training reference.
var ErrNoBackground = errors.New("explainer requires background data")

// Attribution is one feature's contribution to a row's decision value.
type Attribution struct {
	Feature string
	Value   float64
}

// Explainer computes one attribution per model input column for a row.
type Explainer interface {
	Explain(row []float64) ([]float64, error)
}

// Ranker is implemented by explainers that report a ranked top-N.
type Ranker interface {
	Rank(row []float64, n int) ([]Attribution, error)
}

// scoreFunc evaluates the model's decision function on rows in the
// explainer's column layout.
type scoreFunc func(rows [][]float64) ([]float64, error)

type factory func(score scoreFunc, columns []string, background [][]float64, kw kwargs) (Explainer, error)

type registration struct {
	needsBackground bool
	build           factory
}

var registry = map[Variant]registration{
	VariantKernel:      {needsBackground: true, build: newKernelExplainer},
	VariantPermutation: {needsBackground: true, build: newPermutationExplainer},
	VariantExact:       {needsBackground: false, build: newExactExplainer},
	VariantTabular:     {needsBackground: true, build: newTabularExplainer},
}

// NeedsBackground reports whether a variant must be built with background rows.
func NeedsBackground(v Variant) bool {
	return registry[v].needsBackground
}

// New builds the explainer bound by cfg for a model whose inputs are the
// given columns. Background rows must be in the same column layout.
func New(cfg Config, model inference.Model, columns []string, background [][]float64) (Explainer, error) {
	variant, err := ResolveVariant(cfg)
	if err != nil {
		return nil, err
	}
	reg, ok := registry[variant]
	if !ok {
		return nil, fmt.Errorf("%w: variant %q", ErrUnknownExplainer, variant)
	}
	if reg.needsBackground && len(background) == 0 {
		return nil, fmt.Errorf("%s %s: %w", cfg.Kind, variant, ErrNoBackground)
	}
	if !reg.needsBackground {
		background = nil
	}

	cols := append([]string(nil), columns...)
	score := func(rows [][]float64) ([]float64, error) {
		return model.Score(rows, cols)
	}
	return reg.build(score, cols, background, kwargs(cfg.ExplainerKwargs))
}

// Attributions pairs an attribution vector with its column names.
func Attributions(columns []string, values []float64) []Attribution {
	out := make([]Attribution, 0, len(columns))
	for i, c := range columns {
		if i < len(values) {
			out = append(out, Attribution{Feature: c, Value: values[i]})
		}
	}
	return out
}

// TopFeature returns the attribution with the largest absolute value.
// Ties keep the earliest column.
func TopFeature(attrs []Attribution) (Attribution, bool) {
	if len(attrs) == 0 {
		return Attribution{}, false
	}
	best := attrs[0]
	for _, a := range attrs[1:] {
		if abs(a.Value) > abs(best.Value) {
			best = a
		}
	}
	return best, true
}

// rankAttributions sorts by descending absolute value and keeps the first n.
func rankAttributions(attrs []Attribution, n int) []Attribution {
	out := append([]Attribution(nil), attrs...)
	sort.SliceStable(out, func(i, j int) bool { return abs(out[i].Value) > abs(out[j].Value) })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// kwargs reads explainer keyword arguments decoded from JSON or YAML.
type kwargs map[string]any

func (k kwargs) int(name string, def int) int {
	switch v := k[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func (k kwargs) float(name string, def float64) float64 {
	switch v := k[name].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return def
}
