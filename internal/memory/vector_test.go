package memory

import (
	"math"
	"testing"
)

func TestEncodeDecodeVector(t *testing.T) {
	in := []float32{0.25, -1.5, 3.75, 0}
	blob, err := EncodeVector(in)
	if err != nil {
		t.Fatalf("EncodeVector: %v", err)
	}
	out, err := DecodeVector(blob)
	if err != nil {
		t.Fatalf("DecodeVector: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("dimension = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("value[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestEncodeVectorRejectsInvalid(t *testing.T) {
	if _, err := EncodeVector(nil); err == nil {
		t.Fatal("expected error for empty vector")
	}
	if _, err := EncodeVector([]float32{float32(math.NaN())}); err == nil {
		t.Fatal("expected error for NaN value")
	}
	if _, err := EncodeVector(make([]float32, maxVectorDim+1)); err == nil {
		t.Fatal("expected error for oversized vector")
	}
}

func TestDecodeVectorRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
	}{
		{"too short", []byte{1, 0}},
		{"zero dimension", []byte{0, 0, 0, 0}},
		{"absurd dimension", []byte{255, 255, 255, 255}},
		{"payload mismatch", []byte{2, 0, 0, 0, 1, 2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeVector(tt.blob); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("identical vectors", func(t *testing.T) {
		got, err := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3})
		if err != nil {
			t.Fatalf("CosineSimilarity: %v", err)
		}
		if math.Abs(got-1) > 1e-9 {
			t.Fatalf("similarity = %v, want 1", got)
		}
	})
	t.Run("orthogonal vectors", func(t *testing.T) {
		got, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
		if err != nil {
			t.Fatalf("CosineSimilarity: %v", err)
		}
		if math.Abs(got) > 1e-9 {
			t.Fatalf("similarity = %v, want 0", got)
		}
	})
	t.Run("dimension mismatch", func(t *testing.T) {
		if _, err := CosineSimilarity([]float32{1}, []float32{1, 2}); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("zero norm", func(t *testing.T) {
		if _, err := CosineSimilarity([]float32{0, 0}, []float32{1, 1}); err == nil {
			t.Fatal("expected error")
		}
	})
}
