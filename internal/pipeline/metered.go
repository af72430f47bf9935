package pipeline

import (
	"context"
	"strings"

	"dossier/internal/cost"
	"dossier/internal/llm"
	"dossier/internal/triangulate"
)

// meteredLLM forwards Gemini calls and bills the run ledger for each
// successful one. Failed calls cost nothing; the API did not charge for them
// either.
type meteredLLM struct {
	client *llm.Client
	ledger *cost.Ledger
}

func (m *meteredLLM) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float64, error) {
	vectors, err := m.client.GenerateEmbeddings(ctx, texts)
	if err == nil {
		m.ledger.ChargeEmbeddings(llm.DefaultEmbeddingModel, texts)
	}
	return vectors, err
}

func (m *meteredLLM) ScoreLabels(ctx context.Context, text string, labels []string) (string, float64, error) {
	label, confidence, err := m.client.ScoreLabels(ctx, text, labels)
	if err == nil {
		m.ledger.ChargeLabelScore(llm.DefaultModel, text+" "+strings.Join(labels, " "))
	}
	return label, confidence, err
}

// meteredOracle wraps the similarity oracle used for paraphrase clustering.
// The lexical fallback never reaches this type, so local clustering stays
// free on the ledger.
type meteredOracle struct {
	inner  triangulate.SimilarityOracle
	ledger *cost.Ledger
}

func (o *meteredOracle) Name() string { return o.inner.Name() }

func (o *meteredOracle) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	vectors, err := o.inner.Encode(ctx, texts)
	if err == nil {
		o.ledger.ChargeEmbeddings(llm.DefaultEmbeddingModel, texts)
	}
	return vectors, err
}
