package memory

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	blobHeaderSize = 4
	valueByteSize  = 4

	// maxVectorDim bounds what the codec accepts. Embedding models top
	// out orders of magnitude below this; a header above it means a
	// corrupt blob, not a big vector.
	maxVectorDim = 1 << 16
)

// EncodeVector packs a float32 vector into a blob.
// Format: [4-byte little-endian dimension][N x 4-byte little-endian float32].
func EncodeVector(vector []float32) ([]byte, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("encode vector: empty vector")
	}
	if len(vector) > maxVectorDim {
		return nil, fmt.Errorf("encode vector: dimension too large: %d", len(vector))
	}

	blob := make([]byte, blobHeaderSize+len(vector)*valueByteSize)
	binary.LittleEndian.PutUint32(blob[:blobHeaderSize], uint32(len(vector)))

	offset := blobHeaderSize
	for i, v := range vector {
		if !isFinite(float64(v)) {
			return nil, fmt.Errorf("encode vector: invalid value at index %d", i)
		}
		binary.LittleEndian.PutUint32(blob[offset:offset+valueByteSize], math.Float32bits(v))
		offset += valueByteSize
	}
	return blob, nil
}

// DecodeVector unpacks a blob created by EncodeVector.
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob) < blobHeaderSize {
		return nil, fmt.Errorf("decode vector: blob too short: %d", len(blob))
	}

	dim := int(binary.LittleEndian.Uint32(blob[:blobHeaderSize]))
	if dim <= 0 || dim > maxVectorDim {
		return nil, fmt.Errorf("decode vector: invalid dimension: %d", dim)
	}
	if want := blobHeaderSize + dim*valueByteSize; len(blob) != want {
		return nil, fmt.Errorf("decode vector: dimension mismatch: dim=%d payload=%d", dim, len(blob)-blobHeaderSize)
	}

	vector := make([]float32, dim)
	offset := blobHeaderSize
	for i := range vector {
		v := math.Float32frombits(binary.LittleEndian.Uint32(blob[offset : offset+valueByteSize]))
		if !isFinite(float64(v)) {
			return nil, fmt.Errorf("decode vector: invalid value at index %d", i)
		}
		vector[i] = v
		offset += valueByteSize
	}
	return vector, nil
}

// CosineSimilarity returns the cosine of the angle between a and b,
// clamped to [-1, 1].
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("cosine similarity: empty vector")
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine similarity: dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("cosine similarity: zero vector norm")
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if score > 1 {
		score = 1
	} else if score < -1 {
		score = -1
	}
	return score, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
