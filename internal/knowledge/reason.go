package knowledge

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"qms-workers/internal/common/config"
	"qms-workers/internal/common/errors"
	commonhttp "qms-workers/internal/common/http"
	"qms-workers/internal/models"
)

const systemPrompt = `You are a quality management system assistant for a regulated manufacturer.
Answer strictly from the numbered sources provided. Quote clause and procedure numbers exactly.
If the sources do not answer the question, say that the documentation does not cover it.
Refer to sources by their number in square brackets.`

// Answer is a grounded response and the documents it was built from.
type Answer struct {
	Text      string            `json:"answer"`
	Citations []models.Citation `json:"citations"`
}

// Grounded reports whether any source document backed the answer.
func (a *Answer) Grounded() bool {
	return a != nil && len(a.Citations) > 0
}

// Reasoner turns retrieved passages into an answer.
type Reasoner interface {
	Reason(ctx context.Context, question string, chunks []Chunk) (*Answer, error)
}

// ChatCompleter is the part of the OpenAI client the reasoner uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type OpenAIReasoner struct {
	api         ChatCompleter
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIReasoner builds a reasoner on the chat completions API. BaseURL
// may point at any OpenAI-compatible endpoint.
func NewOpenAIReasoner(cfg config.OpenAIConfig, httpClient *commonhttp.Client) *OpenAIReasoner {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	return NewReasonerWithAPI(openai.NewClientWithConfig(clientCfg), cfg.Model, cfg.Temperature, cfg.MaxTokens)
}

func NewReasonerWithAPI(api ChatCompleter, model string, temperature float32, maxTokens int) *OpenAIReasoner {
	return &OpenAIReasoner{api: api, model: model, temperature: temperature, maxTokens: maxTokens}
}

func (r *OpenAIReasoner) Reason(ctx context.Context, question string, chunks []Chunk) (*Answer, error) {
	resp, err := r.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(question, chunks)},
		},
	})
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.NewReasoningTimeoutError(err)
		}
		return nil, errors.NewReasoningFailedError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.NewReasoningFailedError(fmt.Errorf("no choices returned"))
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, errors.NewReasoningFailedError(fmt.Errorf("empty completion"))
	}

	return &Answer{Text: text, Citations: citations(chunks)}, nil
}

func buildPrompt(question string, chunks []Chunk) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nSources:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s", i+1, c.Title)
		if c.Page != nil {
			fmt.Fprintf(&b, ", page %d", *c.Page)
		}
		if c.URL != "" {
			fmt.Fprintf(&b, " (%s)", c.URL)
		}
		b.WriteString("\n")
		b.WriteString(c.Snippet)
		b.WriteString("\n\n")
	}
	return b.String()
}

// citations lists each source document once, in retrieval order.
func citations(chunks []Chunk) []models.Citation {
	out := make([]models.Citation, 0, len(chunks))
	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		key := c.Title + "\x00" + c.URL
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, models.Citation{Title: c.Title, URL: c.URL, Page: c.Page})
	}
	return out
}
