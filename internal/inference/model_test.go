// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package inference

import (
	"reflect"
	"testing"
)

func TestZScoreModel(t *testing.T) {
	m := &ZScoreModel{Columns: []string{"a", "b"}, Mean: []float64{0, 10}, Std: []float64{1, 2}, Threshold: 3}
	x := [][]float64{
		{0, 10},
		{5, 10},
		{0, 18},
	}
	labels, err := m.Predict(x, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	want := []int{NormalLabel, AnomalyLabel, AnomalyLabel}
	if !reflect.DeepEqual(labels, want) {
		t.Errorf("Predict() = %v, want %v", labels, want)
	}

	scores, _ := m.Score(x[:1], []string{"a", "b"})
	if scores[0] != 3 {
		t.Errorf("Score() = %v, want 3", scores[0])
	}
}

func TestZScoreModelMissingFeatureIsCentered(t *testing.T) {
	m := &ZScoreModel{Columns: []string{"a", "b"}, Mean: []float64{0, 100}, Std: []float64{1, 1}, Threshold: 3}
	labels, err := m.Predict([][]float64{{1}}, []string{"a"})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if labels[0] != NormalLabel {
		t.Errorf("label = %d, want normal", labels[0])
	}
}

func TestLinearModel(t *testing.T) {
	m := &LinearModel{Columns: []string{"a", "b"}, Weights: []float64{1, -1}, Bias: 0.5}
	labels, err := m.Predict([][]float64{{0, 0}, {0, 1}, {2, 1}}, []string{"b", "a"})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	// columns are reordered by name: rows are (a,b) = (0,0), (1,0), (1,2)
	want := []int{NormalLabel, NormalLabel, AnomalyLabel}
	if !reflect.DeepEqual(labels, want) {
		t.Errorf("Predict() = %v, want %v", labels, want)
	}
}

func TestDecodeModel(t *testing.T) {
	m, err := DecodeModel([]byte(`{"kind":"zscore","columns":["a"],"mean":[0],"std":[1]}`))
	if err != nil {
		t.Fatalf("DecodeModel() error = %v", err)
	}
	z, ok := m.(*ZScoreModel)
	if !ok {
		t.Fatalf("DecodeModel() = %T, want *ZScoreModel", m)
	}
	if z.Threshold != 3 {
		t.Errorf("default Threshold = %v, want 3", z.Threshold)
	}

	if _, err := DecodeModel([]byte(`{"kind":"linear","columns":["a"],"weights":[]}`)); err == nil {
		t.Error("expected error for weight mismatch")
	}
	if _, err := DecodeModel([]byte(`{"kind":"standard_scaler"}`)); err == nil {
		t.Error("expected error for transformer kind")
	}
}

func TestDecodeReference(t *testing.T) {
	f, err := DecodeReference([]byte(`{"columns":["length","protocol"],"rows":[[60,"tcp"],[1500,"udp"]]}`))
	if err != nil {
		t.Fatalf("DecodeReference() error = %v", err)
	}
	if f.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", f.Len())
	}
	if v, _ := f.Get(1, "protocol"); v.Str != "udp" {
		t.Errorf("protocol[1] = %+v", v)
	}

	if _, err := DecodeReference([]byte(`{"columns":["a"],"rows":[[1,2]]}`)); err == nil {
		t.Error("expected error for ragged row")
	}
}
