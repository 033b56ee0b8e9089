// Package modelruntime is the stateless synchronous boundary to the
// language model: 768-dim text embeddings, query expansion, and relevance
// rerank scoring. Every call here is an external I/O boundary the retrieval
// pipeline and materializer suspend on.
package modelruntime

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	embeddingDims  = 768
	embeddingModel = openai.SmallEmbedding3
	chatModel      = openai.GPT4oMini
)

// Runtime wraps an OpenAI-compatible client for embeddings and chat
// completions.
type Runtime struct {
	client *openai.Client
}

// New wraps an existing client.
func New(client *openai.Client) *Runtime {
	return &Runtime{client: client}
}

// NewWithAPIKey constructs a client from an API key, the common case.
func NewWithAPIKey(apiKey string) *Runtime {
	return New(openai.NewClient(apiKey))
}

// Embed returns a single 768-dim embedding.
func (r *Runtime) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("modelruntime: empty embedding response")
	}
	return vectors[0], nil
}

// EmbedBatch embeds several texts in a single model call.
func (r *Runtime) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := r.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      embeddingModel,
		Dimensions: embeddingDims,
	})
	if err != nil {
		return nil, fmt.Errorf("modelruntime: embed: %w", err)
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// ComposeEmbeddingInput builds the embedding input text from a message's
// subject and the first 1000 characters of its body.
func ComposeEmbeddingInput(subject, bodyText string) string {
	body := bodyText
	if r := []rune(body); len(r) > 1000 {
		body = string(r[:1000])
	}
	return subject + "\n\n" + body
}

// ExpandQuery asks the instruction model for one alternative phrasing,
// constrained to a single line of at most 200 bytes. Returns [original] on
// any failure, per the retrieval pipeline's fallback rule.
func (r *Runtime) ExpandQuery(ctx context.Context, query string) []string {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: chatModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(
					"Give one alternative phrasing of this search query. "+
						"Respond with only the rephrased query on a single line, no explanation, no quotes.\n\nQuery: %s",
					query),
			},
		},
		MaxTokens: 64,
	})
	if err != nil || len(resp.Choices) == 0 {
		return []string{query}
	}
	alt := strings.TrimSpace(strings.SplitN(resp.Choices[0].Message.Content, "\n", 2)[0])
	alt = strings.Trim(alt, `"'`)
	if alt == "" || len(alt) > 200 || strings.EqualFold(alt, query) {
		return []string{query}
	}
	return []string{query, alt}
}

var firstIntRe = regexp.MustCompile(`-?\d+`)

// RerankScore rates how relevant a candidate email is to a query on a
// 0..10 scale, divided to 0..1. On any parse or call failure it returns
// the neutral default 0.5.
func (r *Runtime) RerankScore(ctx context.Context, query, subject, snippet string) float64 {
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: chatModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(
					"Rate how relevant this email is to the search query on a scale of 0-10.\n\n"+
						"Query: %s\nSubject: %s\nSnippet: %s\n\nRespond with only the number.",
					query, subject, snippet),
			},
		},
		MaxTokens: 8,
	})
	if err != nil || len(resp.Choices) == 0 {
		return 0.5
	}
	match := firstIntRe.FindString(resp.Choices[0].Message.Content)
	if match == "" {
		return 0.5
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0.5
	}
	if n < 0 {
		n = 0
	}
	if n > 10 {
		n = 10
	}
	return float64(n) / 10
}
