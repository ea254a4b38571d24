package embed

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"math"
	"strings"
	"unicode"
)

// HashProvider is a deterministic embedding with no external model: each
// token is hashed onto one dimension with a hash-derived sign, then the
// vector is L2-normalized. The same text always yields the same vector,
// which matters for tests and offline operation.
type HashProvider struct {
	dim int
}

// NewHashProvider creates a hash embedder of the given dimension.
func NewHashProvider(dim int) *HashProvider {
	return &HashProvider{dim: dim}
}

// Dimensions returns the configured vector dimension.
func (p *HashProvider) Dimensions() int {
	return p.dim
}

// Embed hashes each text into a normalized vector.
func (p *HashProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.embedOne(t)
	}
	return out, nil
}

func (p *HashProvider) embedOne(text string) []float32 {
	vec := make([]float32, p.dim)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vec
	}

	for _, tok := range tokens {
		h := sha1.Sum([]byte(tok))
		idx := int(binary.LittleEndian.Uint32(h[:4])) % p.dim
		sign := float32(1)
		if h[4]&1 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}

	return Normalize(vec)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Normalize scales the vector to unit L2 norm in place and returns it.
// A zero vector is returned unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
