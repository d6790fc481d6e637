// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package inference

import (
	"reflect"
	"testing"
)

func TestFrameFromMaps(t *testing.T) {
	f := FrameFromMaps([]map[string]any{
		{"src_ip": "10.0.0.1", "length": 60.0},
		{"length": 1500.0, "protocol": "tcp"},
	})

	want := []string{"length", "protocol", "src_ip"}
	if !reflect.DeepEqual(f.Columns, want) {
		t.Fatalf("Columns = %v, want %v", f.Columns, want)
	}
	if f.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", f.Len())
	}

	v, ok := f.Get(1, "src_ip")
	if !ok {
		t.Fatal("src_ip should exist")
	}
	if v.IsText || v.Num != 0 {
		t.Errorf("missing cell = %+v, want numeric zero", v)
	}
	v, _ = f.Get(0, "src_ip")
	if !v.IsText || v.Str != "10.0.0.1" {
		t.Errorf("src_ip = %+v", v)
	}
}

func TestFrameSetAndDropColumns(t *testing.T) {
	f := NewFrame([]string{"a", "b"})
	f.Rows = [][]Value{{Num(1), Num(2)}, {Num(3), Num(4)}}

	f.SetColumn("c", []Value{Num(5), Num(6)})
	f.SetColumn("a", []Value{Num(10), Num(30)})
	f.DropColumns("b", "missing")

	if !reflect.DeepEqual(f.Columns, []string{"a", "c"}) {
		t.Fatalf("Columns = %v", f.Columns)
	}
	if got, _ := f.Get(1, "a"); got.Num != 30 {
		t.Errorf("a[1] = %v, want 30", got.Num)
	}
	if got, _ := f.Get(0, "c"); got.Num != 5 {
		t.Errorf("c[0] = %v, want 5", got.Num)
	}
}

func TestFrameCloneIsIndependent(t *testing.T) {
	f := NewFrame([]string{"a"})
	f.Rows = [][]Value{{Num(1)}}
	c := f.Clone()
	c.Rows[0][0] = Num(99)
	if f.Rows[0][0].Num != 1 {
		t.Error("Clone shares row storage with original")
	}
}

func TestAlign(t *testing.T) {
	got := Align([][]float64{{1, 2}}, []string{"a", "b"}, []string{"b", "z", "a"})
	want := [][]float64{{2, 0, 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Align() = %v, want %v", got, want)
	}
}

func TestValueOf(t *testing.T) {
	tests := []struct {
		in   any
		want Value
	}{
		{nil, Value{}},
		{3, Num(3)},
		{int64(7), Num(7)},
		{2.5, Num(2.5)},
		{true, Num(1)},
		{"udp", Text("udp")},
	}
	for _, tt := range tests {
		if got := ValueOf(tt.in); got != tt.want {
			t.Errorf("ValueOf(%v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
