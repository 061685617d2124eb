package transport

import (
	"context"

	"github.com/ecotravel/server/internal/agent/model"
)

// FragmentFunc receives streamed text fragments as they arrive. Concatenating
// every fragment yields the full text of the turn so far. The consumer decides
// how to render partial output.
type FragmentFunc func(text string)

// Input is one delta sent into the session: either new user text or the
// result of a tool call, never both. The session accumulates history itself,
// so callers must not replay prior messages.
type Input struct {
	Text       string
	ToolResult *model.ToolResult
}

// TurnResult is the terminal result of a send: the full text, any tool-call
// requests the model emitted, and grounding citations for the turn.
type TurnResult struct {
	Text      string
	ToolCalls []model.ToolCall
	Sources   []model.GroundingSource
}

// Session wraps a single stateful chat session with the model backend.
// Exactly one terminal result (or error) is produced per Send. Failures are
// either *errx.RateLimitError (retryable) or *errx.TransportError.
type Session interface {
	Send(ctx context.Context, in Input, emit FragmentFunc) (*TurnResult, error)
}
