package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/ecotravel/server/internal/agent/model"
	errx "github.com/ecotravel/server/internal/core/errx"
	logx "github.com/ecotravel/server/pkg/logger"
)

// ClientConfig holds what is needed to construct the Gemini client. There is
// no process-wide client; callers pass the built client where it is needed.
type ClientConfig struct {
	APIKey  string
	BaseURL string
}

// NewClient creates a Gemini API client from explicit configuration.
func NewClient(ctx context.Context, cfg ClientConfig) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// SessionConfig configures one chat session.
type SessionConfig struct {
	Model             model.ChatModelConfig
	SystemInstruction string
	// Declarations are the callable tools exposed to the model; Google
	// Search grounding is always attached alongside them.
	Declarations []*genai.FunctionDeclaration
}

// GeminiSession is a Session backed by a genai chat. The chat accumulates
// conversation history internally across sends.
type GeminiSession struct {
	chat      *genai.Chat
	modelName string
}

// NewGeminiSession opens a fresh chat session with the system instruction and
// tool declarations bound.
func NewGeminiSession(ctx context.Context, client *genai.Client, cfg SessionConfig) (*GeminiSession, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(cfg.Model.Temperature),
		MaxOutputTokens:   int32(cfg.Model.MaxTokens),
		SystemInstruction: genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser),
		Tools: []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
			{FunctionDeclarations: cfg.Declarations},
		},
	}

	chat, err := client.Chats.Create(ctx, cfg.Model.Model, genCfg, nil)
	if err != nil {
		logx.Error().Err(err).Str("model", cfg.Model.Model).Msg("Error creating chat session")
		return nil, mapGenaiError(err)
	}

	return &GeminiSession{chat: chat, modelName: cfg.Model.Model}, nil
}

// Send streams one turn. Text fragments are forwarded through emit as they
// arrive; tool calls and grounding citations are collected across chunks and
// returned with the terminal result.
func (s *GeminiSession) Send(ctx context.Context, in Input, emit FragmentFunc) (*TurnResult, error) {
	parts, err := buildParts(in)
	if err != nil {
		return nil, err
	}

	var (
		text    strings.Builder
		calls   []model.ToolCall
		sources []model.GroundingSource
		usage   *genai.GenerateContentResponseUsageMetadata
	)

	for chunk, err := range s.chat.SendMessageStream(ctx, parts...) {
		if err != nil {
			return nil, mapGenaiError(err)
		}
		if fragment := chunk.Text(); fragment != "" {
			text.WriteString(fragment)
			if emit != nil {
				emit(fragment)
			}
		}
		for _, fc := range chunk.FunctionCalls() {
			calls = append(calls, model.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
		if src := collectSources(chunk); len(src) > 0 {
			sources = src
		}
		if chunk.UsageMetadata != nil {
			usage = chunk.UsageMetadata
		}
	}

	if usage != nil {
		logx.Debug().
			Str("model", s.modelName).
			Int32("prompt_tokens", usage.PromptTokenCount).
			Int32("completion_tokens", usage.CandidatesTokenCount).
			Int32("total_tokens", usage.TotalTokenCount).
			Msg("LLM usage")
	}

	return &TurnResult{
		Text:      text.String(),
		ToolCalls: calls,
		Sources:   sources,
	}, nil
}

// buildParts converts an Input delta into genai parts. Tool results travel as
// function responses wrapped in a single "result" field.
func buildParts(in Input) ([]genai.Part, error) {
	if in.ToolResult != nil {
		return []genai.Part{{
			FunctionResponse: &genai.FunctionResponse{
				ID:       in.ToolResult.CallID,
				Name:     in.ToolResult.Name,
				Response: map[string]any{"result": in.ToolResult.Result},
			},
		}}, nil
	}
	if in.Text == "" {
		return nil, &errx.TransportError{Err: errors.New("empty input: neither text nor tool result")}
	}
	return []genai.Part{{Text: in.Text}}, nil
}

// collectSources extracts web grounding citations from a response chunk.
func collectSources(resp *genai.GenerateContentResponse) []model.GroundingSource {
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var sources []model.GroundingSource
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk.Web != nil && chunk.Web.URI != "" && chunk.Web.Title != "" {
			sources = append(sources, model.GroundingSource{Title: chunk.Web.Title, URI: chunk.Web.URI})
		}
	}
	return sources
}

// mapGenaiError translates backend failures into the core taxonomy: HTTP 429
// becomes the retryable RateLimitError, everything else a TransportError.
func mapGenaiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return &errx.RateLimitError{Err: err}
	}
	return &errx.TransportError{Err: err}
}

var _ Session = (*GeminiSession)(nil)
