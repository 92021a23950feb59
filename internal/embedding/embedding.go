// Package embedding holds helpers shared by the embedder implementations.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"askdocs/internal/domain"
)

// ProbeText is embedded once before indexing to discover the vector dimension.
const ProbeText = "test"

// ToFloat32 narrows a float64 vector to the index precision.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// Probe embeds ProbeText and reports the dimension of the result.
func Probe(ctx context.Context, e domain.Embedder) (int, error) {
	vecs, err := e.Embed(ctx, []string{ProbeText})
	if err != nil {
		return 0, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return 0, errors.New("probe embedding returned no vector")
	}
	return len(vecs[0]), nil
}

// CheckBatch verifies an embedder honoured the one-vector-per-input contract.
func CheckBatch(texts []string, vecs [][]float32) error {
	if len(vecs) != len(texts) {
		return fmt.Errorf("embedder returned %d vectors for %d inputs", len(vecs), len(texts))
	}
	return nil
}
