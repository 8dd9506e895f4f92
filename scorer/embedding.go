package scorer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/signalnine/gauntlet/eval"
)

var ErrEmbedderRequired = errors.New("embedder is required")

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Embedding scores the cosine similarity between the embeddings of the
// expected and output text. It passes at or above threshold.
func Embedding(embedder Embedder, threshold float64) eval.Scorer {
	return &embeddingScorer{embedder: embedder, threshold: threshold}
}

type embeddingScorer struct {
	embedder  Embedder
	threshold float64
}

func (s *embeddingScorer) Name() string { return "embedding_cosine" }

func (s *embeddingScorer) Score(ctx context.Context, expected, output any) (eval.Score, error) {
	if s.embedder == nil {
		return eval.Score{}, ErrEmbedderRequired
	}
	e, err := stringify(expected, "")
	if err != nil {
		return eval.Score{}, err
	}
	o, err := stringify(output, "")
	if err != nil {
		return eval.Score{}, err
	}

	ev, err := s.embedder.Embed(ctx, e)
	if err != nil {
		return eval.Score{}, fmt.Errorf("embedding expected: %w", err)
	}
	ov, err := s.embedder.Embed(ctx, o)
	if err != nil {
		return eval.Score{}, fmt.Errorf("embedding output: %w", err)
	}

	sim := Cosine(ev, ov)
	return eval.Score{
		Name:   s.Name(),
		Value:  sim,
		Passed: sim >= s.threshold,
		Details: map[string]any{
			"dimensions": len(ov),
			"threshold":  s.threshold,
		},
	}, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when the vectors
// differ in length, are empty, or either has zero norm.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// OpenAIEmbedder embeds text with an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

func NewOpenAIEmbedder(client *openai.Client, model string) *OpenAIEmbedder {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{client: client, model: model}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Data[0].Embedding, nil
}

// GeminiEmbedder embeds text with the Gemini embeddings API.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

func NewGeminiEmbedder(client *genai.Client, model string) *GeminiEmbedder {
	if model == "" {
		model = "text-embedding-004"
	}
	return &GeminiEmbedder{client: client, model: model}
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{{Parts: []*genai.Part{{Text: text}}}}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{})
	if err != nil {
		return nil, fmt.Errorf("creating embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Embeddings[0].Values, nil
}

var (
	_ Embedder = (*OpenAIEmbedder)(nil)
	_ Embedder = (*GeminiEmbedder)(nil)
)
