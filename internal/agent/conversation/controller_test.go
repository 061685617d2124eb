package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecotravel/server/internal/agent/model"
	"github.com/ecotravel/server/internal/agent/tools"
	"github.com/ecotravel/server/internal/agent/transport"
	errx "github.com/ecotravel/server/internal/core/errx"
	"github.com/ecotravel/server/internal/trip"
)

// fakeSession replays a script of turn handlers and records every input it
// receives. Running past the script is a test bug and fails loudly.
type fakeSession struct {
	t      *testing.T
	script []func(in transport.Input, emit transport.FragmentFunc) (*transport.TurnResult, error)
	inputs []transport.Input
}

func (s *fakeSession) Send(ctx context.Context, in transport.Input, emit transport.FragmentFunc) (*transport.TurnResult, error) {
	s.inputs = append(s.inputs, in)
	require.NotEmpty(s.t, s.script, "session called more often than scripted")
	next := s.script[0]
	s.script = s.script[1:]
	return next(in, emit)
}

func textTurn(fragments ...string) func(transport.Input, transport.FragmentFunc) (*transport.TurnResult, error) {
	return func(_ transport.Input, emit transport.FragmentFunc) (*transport.TurnResult, error) {
		var full string
		for _, f := range fragments {
			full += f
			if emit != nil {
				emit(f)
			}
		}
		return &transport.TurnResult{Text: full}, nil
	}
}

func toolTurn(call model.ToolCall) func(transport.Input, transport.FragmentFunc) (*transport.TurnResult, error) {
	return func(transport.Input, transport.FragmentFunc) (*transport.TurnResult, error) {
		return &transport.TurnResult{ToolCalls: []model.ToolCall{call}}, nil
	}
}

type fakeExtractor struct {
	proposal *trip.Proposal
}

func (f *fakeExtractor) Extract(ctx context.Context, transcript string) (*trip.Proposal, error) {
	return f.proposal, nil
}

func testConfig() model.ConversationConfig {
	return model.ConversationConfig{MaxToolCalls: 10, ExtractMinChars: 500}
}

func newTestController(t *testing.T, session *fakeSession, events Events) *Controller {
	session.t = t
	return New(Config{
		Session:    session,
		Dispatcher: tools.NewDispatcher(nil, nil, nil, model.SearchConfig{Currency: "EUR", Locale: "de"}, ""),
		Cfg:        testConfig(),
		Events:     events,
	})
}

func TestStartKeepsGreetingTriggerHidden(t *testing.T) {
	session := &fakeSession{script: []func(transport.Input, transport.FragmentFunc) (*transport.TurnResult, error){
		textTurn("Hi! Where would you like to go?"),
	}}
	c := newTestController(t, session, Events{})

	require.NoError(t, c.Start(context.Background()))

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleModel, msgs[0].Role)
	assert.Equal(t, "Hi! Where would you like to go?", msgs[0].Text)
	// The trigger reached the session but never the history.
	require.Len(t, session.inputs, 1)
	assert.NotEmpty(t, session.inputs[0].Text)
}

func TestPlainTextTurn(t *testing.T) {
	session := &fakeSession{script: []func(transport.Input, transport.FragmentFunc) (*transport.TurnResult, error){
		func(in transport.Input, emit transport.FragmentFunc) (*transport.TurnResult, error) {
			emit("Sounds ")
			emit("lovely!")
			return &transport.TurnResult{
				Text:    "Sounds lovely!",
				Sources: []model.GroundingSource{{Title: "Wikivoyage", URI: "https://example.org"}},
			}, nil
		},
	}}

	var updates []string
	c := newTestController(t, session, Events{
		MessageUpdated: func(id, text string) { updates = append(updates, text) },
	})

	require.NoError(t, c.SendUserMessage(context.Background(), "A week in Portugal"))

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "A week in Portugal", msgs[0].Text)
	assert.Equal(t, "Sounds lovely!", msgs[1].Text)

	// Streaming grows the same message fragment by fragment.
	require.Equal(t, []string{"Sounds ", "Sounds lovely!"}, updates)

	require.Len(t, c.Sources(), 1)
	assert.Equal(t, "Wikivoyage", c.Sources()[0].Title)
	assert.False(t, c.IsBusy())
}

func TestSendRejectedWhileBusy(t *testing.T) {
	var c *Controller
	session := &fakeSession{script: []func(transport.Input, transport.FragmentFunc) (*transport.TurnResult, error){
		func(transport.Input, transport.FragmentFunc) (*transport.TurnResult, error) {
			// A send arriving mid-turn must bounce without touching history.
			assert.ErrorIs(t, c.SendUserMessage(context.Background(), "me too"), ErrBusy)
			return &transport.TurnResult{Text: "done"}, nil
		},
	}}
	c = newTestController(t, session, Events{})

	require.NoError(t, c.SendUserMessage(context.Background(), "first"))
	require.Len(t, c.Messages(), 2)
}

func TestWidgetSuspendAndSubmit(t *testing.T) {
	session := &fakeSession{script: []func(transport.Input, transport.FragmentFunc) (*transport.TurnResult, error){
		toolTurn(model.ToolCall{ID: "call-7", Name: tools.ToolRequestPersonCount}),
		textTurn("Great, two of you!"),
	}}
	c := newTestController(t, session, Events{})

	require.NoError(t, c.SendUserMessage(context.Background(), "We want to travel in October"))

	// Suspended: widget open, pending call parked, turn over.
	assert.Equal(t, model.WidgetPersonCount, c.ActiveWidget())
	require.NotNil(t, c.PendingToolCall())
	assert.Equal(t, "call-7", c.PendingToolCall().CallID)
	assert.False(t, c.IsBusy())

	// Free-text input is blocked until the widget is answered.
	assert.ErrorIs(t, c.SendUserMessage(context.Background(), "hello?"), ErrWidgetActive)
	// As is submitting the wrong widget.
	assert.ErrorIs(t, c.SubmitWidget(context.Background(), model.WidgetTripDetails, nil), ErrNoPendingWidget)

	require.NoError(t, c.SubmitWidget(context.Background(), model.WidgetPersonCount, map[string]any{"count": 2}))

	assert.Equal(t, model.WidgetNone, c.ActiveWidget())
	assert.Nil(t, c.PendingToolCall())

	// The submission travelled back as the parked call's function response.
	require.Len(t, session.inputs, 2)
	tr := session.inputs[1].ToolResult
	require.NotNil(t, tr)
	assert.Equal(t, "call-7", tr.CallID)
	assert.Equal(t, tools.ToolRequestPersonCount, tr.Name)

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "2 travelers selected.", msgs[1].Text)
	assert.True(t, msgs[1].IsSystemAction)
	assert.Equal(t, "Great, two of you!", msgs[2].Text)
}

func TestTripDetailsConfirmationText(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
		want   string
	}{
		{
			name: "flexible inspiration search",
			values: map[string]any{
				"isFlexible":      true,
				"durationDays":    7,
				"preferredSeason": "October",
				"tripBudget":      900,
			},
			want: "Search: Inspiration (open) | ca. 7 days (October), budget: 900 EUR",
		},
		{
			name: "fixed dates without budget",
			values: map[string]any{
				"destination": "Lisbon",
				"startDate":   "2026-10-02",
				"endDate":     "2026-10-09",
			},
			want: "Search: Lisbon | 2026-10-02 - 2026-10-09",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, confirmationText(tools.ToolRequestTripDetails, tt.values))
		})
	}
}

func TestRecommendationsAttachWithoutVisibleConfirmation(t *testing.T) {
	rec := map[string]any{
		"title":         "Slow train to Liguria",
		"destination":   "Cinque Terre",
		"description":   "Coastal villages without the airport.",
		"totalCost":     540.0,
		"co2Kg":         38.0,
		"transportMode": "train",
		"imageKeyword":  "Cinque Terre coast",
	}
	session := &fakeSession{script: []func(transport.Input, transport.FragmentFunc) (*transport.TurnResult, error){
		toolTurn(model.ToolCall{ID: "call-1", Name: tools.ToolDisplayRecommendations, Args: map[string]any{
			"recommendations": []any{rec},
		}}),
		// The model has nothing to add after the ack.
		textTurn(),
	}}
	c := newTestController(t, session, Events{})

	require.NoError(t, c.SendUserMessage(context.Background(), "show me something by train"))

	// The ack goes back silently; no synthetic user message appears.
	require.Len(t, session.inputs, 2)
	require.NotNil(t, session.inputs[1].ToolResult)
	assert.Equal(t, "options_displayed", session.inputs[1].ToolResult.Result)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	require.Len(t, msgs[1].Recommendations, 1)
	assert.Equal(t, "Slow train to Liguria", msgs[1].Recommendations[0].Title)
	assert.NotEmpty(t, msgs[1].Text) // cards never ship on a blank message
}

func TestToolChainGuard(t *testing.T) {
	loop := toolTurn(model.ToolCall{ID: "x", Name: "inventedTool"})
	var script []func(transport.Input, transport.FragmentFunc) (*transport.TurnResult, error)
	for i := 0; i < 20; i++ {
		script = append(script, loop)
	}
	session := &fakeSession{script: script}
	c := New(Config{
		Session:    session,
		Dispatcher: tools.NewDispatcher(nil, nil, nil, model.SearchConfig{}, ""),
		Cfg:        model.ConversationConfig{MaxToolCalls: 3, ExtractMinChars: 500},
	})
	session.t = t

	err := c.SendUserMessage(context.Background(), "go")
	require.Error(t, err)
	// Initial send plus three chained continuations, then the guard trips.
	assert.Len(t, session.inputs, 4)
	assert.False(t, c.IsBusy())

	msgs := c.Messages()
	assert.Equal(t, genericFailureText, msgs[len(msgs)-1].Text)
}

func TestRateLimitExhaustionMessage(t *testing.T) {
	session := &fakeSession{script: []func(transport.Input, transport.FragmentFunc) (*transport.TurnResult, error){
		func(transport.Input, transport.FragmentFunc) (*transport.TurnResult, error) {
			return nil, &errx.RateLimitError{Err: errors.New("429")}
		},
	}}
	c := newTestController(t, session, Events{})

	err := c.SendUserMessage(context.Background(), "hi")
	require.Error(t, err)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, rateLimitFailureText, msgs[1].Text)
	assert.False(t, c.IsBusy())
}

func TestSelectRecommendationAndAccept(t *testing.T) {
	session := &fakeSession{script: []func(transport.Input, transport.FragmentFunc) (*transport.TurnResult, error){
		textTurn("Excellent choice."),
	}}
	c := newTestController(t, session, Events{})

	rec := trip.Recommendation{
		Title:         "Slow train to Liguria",
		Destination:   "Cinque Terre",
		Description:   "Coastal villages.",
		TotalCost:     540,
		Co2Kg:         38,
		TransportMode: "train",
		ImageKeyword:  "coast",
	}
	require.NoError(t, c.SelectRecommendation(context.Background(), rec))

	// Selecting keeps the proposal through the follow-up turn.
	p := c.Proposal()
	require.NotNil(t, p)
	assert.Equal(t, "Cinque Terre", p.Destination)
	assert.Equal(t, 540.0, p.EstimatedCost)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "I'll take this option: Slow train to Liguria", msgs[0].Text)

	saved, err := c.AcceptProposedTrip()
	require.NoError(t, err)
	assert.Equal(t, "Cinque Terre", saved.Destination)
	assert.Equal(t, trip.StatusPlanned, saved.Status)
	assert.Equal(t, "TBD", saved.StartDate)
	assert.NotEmpty(t, saved.ID)

	assert.Nil(t, c.Proposal())
	msgs = c.Messages()
	assert.Contains(t, msgs[len(msgs)-1].Text, "Cinque Terre")

	_, err = c.AcceptProposedTrip()
	assert.ErrorIs(t, err, ErrNoProposal)
}

func TestNewUserMessageClearsProposalAndSources(t *testing.T) {
	session := &fakeSession{script: []func(transport.Input, transport.FragmentFunc) (*transport.TurnResult, error){
		textTurn("Noted."),
		textTurn("Starting over."),
	}}
	c := newTestController(t, session, Events{})
	c.extractor = &fakeExtractor{proposal: &trip.Proposal{Destination: "Lisbon"}}
	c.cfg.ExtractMinChars = 1

	proposalSet := make(chan *trip.Proposal, 1)
	c.events.ProposalChanged = func(p *trip.Proposal) {
		if p != nil {
			proposalSet <- p
		}
	}

	require.NoError(t, c.SendUserMessage(context.Background(), "a long enough message"))
	select {
	case p := <-proposalSet:
		assert.Equal(t, "Lisbon", p.Destination)
	case <-time.After(2 * time.Second):
		t.Fatal("extraction never set the proposal")
	}

	// The next fresh user message discards the stale proposal.
	c.extractor = nil
	require.NoError(t, c.SendUserMessage(context.Background(), "actually, forget all that"))
	assert.Nil(t, c.Proposal())
}
