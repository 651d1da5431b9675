package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/luckystar-app/luckystar/store"
)

// Gemini talks to the native Gemini generateContent REST endpoint. It is the
// fallback provider when no OpenAI-compatible endpoint is configured.
type Gemini struct {
	client *resty.Client
	model  string
	apiKey string
	logger *slog.Logger
}

// NewGemini builds the Gemini REST assistant.
func NewGemini(apiKey, model string) *Gemini {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Gemini{
		client: resty.New().
			SetBaseURL("https://generativelanguage.googleapis.com/v1beta").
			SetHeader("Content-Type", "application/json").
			SetTimeout(120 * time.Second),
		model:  model,
		apiKey: apiKey,
		logger: slog.With("component", "llm", "provider", "gemini"),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		Temperature float64 `json:"temperature"`
		TopP        float64 `json:"topP"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) payload(prompt string, profile *store.Profile, history []Message) geminiRequest {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	contents := make([]geminiContent, 0, len(history)+1)
	for _, m := range history {
		role := "model"
		if m.Role == "user" {
			role = "user"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: prompt}}})

	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt(profile)}}},
		Contents:          contents,
	}
	req.GenerationConfig.Temperature = 0.7
	req.GenerationConfig.TopP = 0.9
	return req
}

func (g *Gemini) Ask(ctx context.Context, prompt string, profile *store.Profile, history []Message) (string, error) {
	var result geminiResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("key", g.apiKey).
		SetBody(g.payload(prompt, profile, history)).
		SetResult(&result).
		Post(fmt.Sprintf("/models/%s:generateContent", g.model))
	if err != nil {
		g.logger.Error("generate content failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: status %s: %s", ErrGenerationFailed, resp.Status(), resp.Body())
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no candidates in response", ErrGenerationFailed)
	}

	var text string
	for _, part := range result.Candidates[0].Content.Parts {
		text += part.Text
	}
	return text, nil
}

// AskStream satisfies Assistant; the native REST path has no streaming here,
// so the full reply is delivered as one chunk.
func (g *Gemini) AskStream(ctx context.Context, prompt string, profile *store.Profile, history []Message, onChunk func(string)) error {
	text, err := g.Ask(ctx, prompt, profile, history)
	if err != nil {
		return err
	}
	onChunk(text)
	return nil
}
