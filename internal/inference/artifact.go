// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package inference

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// ErrUnknownKind is returned for artifacts whose kind has no implementation.
var ErrUnknownKind = errors.New("unknown artifact kind")

type envelope struct {
	Kind string `json:"kind"`
}

// ArtifactKind returns the kind field of a serialized artifact.
func ArtifactKind(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode artifact envelope: %w", err)
	}
	if env.Kind == "" {
		return "", fmt.Errorf("artifact has no kind")
	}
	return env.Kind, nil
}

// DecodeTransformer decodes a fitted preprocessing artifact.
func DecodeTransformer(data []byte) (Transformer, error) {
	kind, err := ArtifactKind(data)
	if err != nil {
		return nil, err
	}

	var t Transformer
	switch kind {
	case KindStandardScaler:
		s := &StandardScaler{}
		if err := json.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		if len(s.Mean) != len(s.Columns) || len(s.Scale) != len(s.Columns) {
			return nil, fmt.Errorf("%s: mean and scale must match %d columns", kind, len(s.Columns))
		}
		t = s
	case KindMinMaxScaler:
		s := &MinMaxScaler{}
		if err := json.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		if len(s.Min) != len(s.Columns) || len(s.Max) != len(s.Columns) {
			return nil, fmt.Errorf("%s: min and max must match %d columns", kind, len(s.Columns))
		}
		t = s
	case KindSimpleImputer:
		s := &SimpleImputer{}
		if err := json.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		if len(s.Fill) != len(s.Columns) {
			return nil, fmt.Errorf("%s: fill must match %d columns", kind, len(s.Columns))
		}
		t = s
	case KindOneHot:
		o := &OneHotEncoder{}
		if err := json.Unmarshal(data, o); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		if len(o.Categories) != len(o.Columns) {
			return nil, fmt.Errorf("%s: categories must match %d columns", kind, len(o.Columns))
		}
		t = o
	case KindPCA:
		p := &PCA{}
		if err := json.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		if len(p.Mean) != len(p.Columns) {
			return nil, fmt.Errorf("%s: mean must match %d columns", kind, len(p.Columns))
		}
		for i, c := range p.Components {
			if len(c) != len(p.Columns) {
				return nil, fmt.Errorf("%s: component %d has %d weights, want %d", kind, i, len(c), len(p.Columns))
			}
		}
		t = p
	default:
		return nil, fmt.Errorf("%w: %q is not a transformer", ErrUnknownKind, kind)
	}
	return t, nil
}

// DecodeModel decodes a fitted model artifact.
func DecodeModel(data []byte) (Model, error) {
	kind, err := ArtifactKind(data)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindZScore:
		m := &ZScoreModel{}
		if err := json.Unmarshal(data, m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		if len(m.Mean) != len(m.Columns) || len(m.Std) != len(m.Columns) {
			return nil, fmt.Errorf("%s: mean and std must match %d columns", kind, len(m.Columns))
		}
		if m.Threshold <= 0 {
			m.Threshold = 3
		}
		return m, nil
	case KindLinear:
		m := &LinearModel{}
		if err := json.Unmarshal(data, m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		if len(m.Weights) != len(m.Columns) {
			return nil, fmt.Errorf("%s: weights must match %d columns", kind, len(m.Columns))
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q is not a model", ErrUnknownKind, kind)
	}
}

// referenceFile is the serialized form of a training reference sample.
type referenceFile struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// DecodeReference decodes a training reference sample into a frame.
func DecodeReference(data []byte) (*Frame, error) {
	var ref referenceFile
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("decode training reference: %w", err)
	}
	f := NewFrame(ref.Columns)
	for i, row := range ref.Rows {
		if len(row) != len(ref.Columns) {
			return nil, fmt.Errorf("training reference row %d has %d values, want %d", i, len(row), len(ref.Columns))
		}
		vals := make([]Value, len(row))
		for j, v := range row {
			vals[j] = ValueOf(v)
		}
		f.Rows = append(f.Rows, vals)
	}
	return f, nil
}
