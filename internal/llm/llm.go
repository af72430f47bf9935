package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/spf13/viper"
	"google.golang.org/genai"
)

const (
	// DefaultModel is the default Gemini model for zero-shot label scoring.
	DefaultModel = "gemini-flash-lite-latest"
	// DefaultEmbeddingModel is the default model for generating embeddings
	DefaultEmbeddingModel = "gemini-embedding-001"
	// DefaultEmbeddingDimensions is the output dimension for embeddings (Matryoshka)
	DefaultEmbeddingDimensions = int32(768)
)

// Client represents a client for interacting with the Gemini API. The
// pipeline only needs embeddings and zero-shot label scoring; both are
// optional capabilities and callers must tolerate a nil client.
type Client struct {
	apiKey         string
	modelName      string
	embeddingModel string
	dimensions     int32
	gClient        *genai.Client
}

// NewClient creates a new LLM client.
// It supports multiple ways to get the API key (in order of preference):
// 1. Environment variable: GEMINI_API_KEY (or alternatives)
// 2. Viper configuration: ai.gemini.api_key
func NewClient(modelName string) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		if apiKey = os.Getenv("GOOGLE_GEMINI_API_KEY"); apiKey == "" {
			if apiKey = os.Getenv("GOOGLE_AI_API_KEY"); apiKey == "" {
				apiKey = viper.GetString("ai.gemini.api_key")
			}
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file")
	}

	if modelName == "" {
		modelName = viper.GetString("ai.gemini.model")
		if modelName == "" {
			modelName = DefaultModel
		}
	}

	embeddingModel := viper.GetString("ai.gemini.embedding_model")
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}

	dimensions := int32(viper.GetInt("ai.gemini.dimensions"))
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}

	ctx := context.Background()
	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		apiKey:         apiKey,
		modelName:      modelName,
		embeddingModel: embeddingModel,
		dimensions:     dimensions,
		gClient:        gClient,
	}, nil
}

// GenerateEmbedding generates a vector embedding for the given text using
// the configured embedding model, reduced to the configured dimensionality.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// GenerateEmbeddings generates one embedding per input text in a single call.
func (c *Client) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		// Stay well inside the embedding model's input limit.
		if len(text) > 8000 {
			text = text[:8000]
		}
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: text}},
			Role:  "user",
		})
	}

	dims := c.dimensions
	config := &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	}

	resp, err := c.gClient.Models.EmbedContent(ctx, c.embeddingModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), embeddingCount(resp))
	}

	vectors := make([][]float64, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("no embedding values returned for input %d", i)
		}
		vec := make([]float64, len(emb.Values))
		for j, val := range emb.Values {
			vec[j] = float64(val)
		}
		vectors[i] = vec
	}

	return vectors, nil
}

func embeddingCount(resp *genai.EmbedContentResponse) int {
	if resp == nil {
		return 0
	}
	return len(resp.Embeddings)
}

// labelScore is the structured-output shape for zero-shot classification.
type labelScore struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ScoreLabels performs zero-shot classification of text against a closed
// label set, returning the best label and its confidence in [0,1].
func (c *Client) ScoreLabels(ctx context.Context, text string, labels []string) (string, float64, error) {
	if len(labels) == 0 {
		return "", 0, fmt.Errorf("no labels provided")
	}

	prompt := fmt.Sprintf(
		"Classify the research topic below into exactly one of these categories: %s.\n\nTopic: %s",
		strings.Join(labels, ", "), text)

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"label":      {Type: genai.TypeString, Enum: labels},
				"confidence": {Type: genai.TypeNumber},
			},
			Required: []string{"label", "confidence"},
		},
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.modelName, contents, config)
	if err != nil {
		return "", 0, fmt.Errorf("failed to score labels: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return "", 0, fmt.Errorf("empty response from model")
	}

	var score labelScore
	if err := json.Unmarshal([]byte(raw), &score); err != nil {
		return "", 0, fmt.Errorf("failed to parse label score %q: %w", raw, err)
	}
	if score.Confidence < 0 {
		score.Confidence = 0
	}
	if score.Confidence > 1 {
		score.Confidence = 1
	}

	return score.Label, score.Confidence, nil
}

// CosineSimilarity calculates the cosine similarity between two embeddings
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
