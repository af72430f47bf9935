// Package triangulate finds independent confirmation across evidence:
// paraphrase clusters over an embedding oracle and structured numeric-claim
// buckets. It owns the contradiction filter and the union triangulation rate.
package triangulate

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"dossier/internal/llm"
)

// SimilarityOracle turns evidence text into unit-norm vectors. Both
// implementations are deterministic for a given input, which the clustering
// contract relies on.
type SimilarityOracle interface {
	Encode(ctx context.Context, texts []string) ([][]float64, error)
	Name() string
}

// GeminiOracle produces embedding vectors through the Gemini API.
type GeminiOracle struct {
	client *llm.Client
}

// NewGeminiOracle wraps an LLM client as an oracle.
func NewGeminiOracle(client *llm.Client) *GeminiOracle {
	return &GeminiOracle{client: client}
}

func (o *GeminiOracle) Name() string { return "gemini" }

// Encode embeds all texts in one call and normalizes each vector.
func (o *GeminiOracle) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	vectors, err := o.client.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding oracle: %w", err)
	}
	for i := range vectors {
		unitNorm(vectors[i])
	}
	return vectors, nil
}

// Hashed-vector width for the lexical fallback.
const lexicalDims = 1024

// LexicalOracle is the keyless fallback: tokens hashed into a fixed-width
// count vector. Cosine over these vectors approximates token overlap, which
// with the numeric-token boost is enough to cluster close paraphrases.
type LexicalOracle struct{}

func (LexicalOracle) Name() string { return "lexical" }

func (LexicalOracle) Encode(_ context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		vec := make([]float64, lexicalDims)
		for _, tok := range tokenize(text) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			vec[h.Sum32()%lexicalDims]++
		}
		unitNorm(vec)
		vectors[i] = vec
	}
	return vectors, nil
}

func unitNorm(vec []float64) {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
}

func tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}
