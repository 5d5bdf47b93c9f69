package util

import (
	"path/filepath"
	"reflect"
	"testing"
)

type sample struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

func TestSaveLoadJsonRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "dir", "sample.json")
	in := sample{Name: "run-1", Values: []float64{1, 2.5, -3}}

	if err := SaveJson(p, in); err != nil {
		t.Fatalf("SaveJson failed: %v", err)
	}
	if !FileExists(p) {
		t.Fatal("SaveJson did not create the file")
	}

	var out sample
	if err := LoadJson(p, &out); err != nil {
		t.Fatalf("LoadJson failed: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("loaded %+v, want %+v", out, in)
	}
}

func TestJsonHashIsStable(t *testing.T) {
	a := sample{Name: "x", Values: []float64{1}}
	if JsonHash(a) != JsonHash(a) {
		t.Error("hashing the same value twice gave different digests")
	}
	b := sample{Name: "y", Values: []float64{1}}
	if JsonHash(a) == JsonHash(b) {
		t.Error("different values hashed to the same digest")
	}
}
