package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ecotravel/server/internal/agent/model"
	"github.com/ecotravel/server/internal/agent/prompts"
	"github.com/ecotravel/server/internal/agent/tools"
	"github.com/ecotravel/server/internal/agent/transport"
	errx "github.com/ecotravel/server/internal/core/errx"
	"github.com/ecotravel/server/internal/trip"
	logx "github.com/ecotravel/server/pkg/logger"
)

var (
	// ErrBusy rejects user sends while a turn is in flight.
	ErrBusy = errors.New("conversation is busy")
	// ErrWidgetActive rejects user sends while a widget awaits submission.
	ErrWidgetActive = errors.New("a widget is awaiting input")
	// ErrNoPendingWidget rejects submissions that match no pending tool call.
	ErrNoPendingWidget = errors.New("no matching pending widget")
	// ErrNoProposal rejects accepting a trip when none is proposed.
	ErrNoProposal = errors.New("no proposed trip")
)

const (
	genericFailureText   = "Something went wrong. Please try again."
	rateLimitFailureText = "I need a short pause — the service is busy right now. Please try again in a moment."
)

// TripExtractor is the advisory background extraction dependency.
type TripExtractor interface {
	Extract(ctx context.Context, transcript string) (*trip.Proposal, error)
}

// Controller owns the conversation state machine and drives the
// tool-orchestration loop: send a delta into the chat session, stream text,
// dispatch at most one tool call per turn, feed its result back, and repeat
// until a turn is plain text or suspends on a widget.
type Controller struct {
	mu sync.Mutex

	session    transport.Session
	dispatcher *tools.Dispatcher
	extractor  TripExtractor
	cfg        model.ConversationConfig
	events     Events

	messages     []model.Message
	pending      *model.PendingToolCall
	activeWidget model.WidgetKind
	busy         bool
	proposal     *trip.Proposal
	sources      []model.GroundingSource

	newID func() string
	now   func() time.Time
}

// Config wires a Controller. Extractor may be nil to disable background
// extraction (tests, or a missing model client).
type Config struct {
	Session    transport.Session
	Dispatcher *tools.Dispatcher
	Extractor  TripExtractor
	Cfg        model.ConversationConfig
	Events     Events
}

func New(cfg Config) *Controller {
	return &Controller{
		session:    cfg.Session,
		dispatcher: cfg.Dispatcher,
		extractor:  cfg.Extractor,
		cfg:        cfg.Cfg,
		events:     cfg.Events,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// Start elicits the assistant's opening turn with the fixed hidden greeting
// trigger. The trigger itself never appears in history.
func (c *Controller) Start(ctx context.Context) error {
	return c.runTurn(ctx, transport.Input{Text: prompts.GreetingTrigger})
}

// SendUserMessage starts a new user turn. It is a rejected no-op while a turn
// is in flight or a widget is active; history stays untouched in both cases.
func (c *Controller) SendUserMessage(ctx context.Context, text string) error {
	return c.sendUserMessage(ctx, text, false)
}

func (c *Controller) sendUserMessage(ctx context.Context, text string, keepProposal bool) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.activeWidget != model.WidgetNone {
		c.mu.Unlock()
		return ErrWidgetActive
	}
	if !keepProposal && c.proposal != nil {
		c.proposal = nil
		c.events.proposalChanged(nil)
	}
	if c.sources != nil {
		c.sources = nil
		c.events.sourcesChanged(nil)
	}
	c.appendLocked(model.Message{
		ID:        c.newID(),
		Role:      model.RoleUser,
		Text:      text,
		Timestamp: c.now(),
	})
	c.mu.Unlock()

	return c.runTurn(ctx, transport.Input{Text: text})
}

// SubmitWidget resolves the pending tool call of the given widget kind with
// user-entered values. It is the only operation allowed to proceed while a
// widget is active; the pending call is cleared before any network activity.
func (c *Controller) SubmitWidget(ctx context.Context, kind model.WidgetKind, values map[string]any) error {
	c.mu.Lock()
	if c.pending == nil || c.activeWidget != kind {
		c.mu.Unlock()
		return ErrNoPendingWidget
	}
	pending := *c.pending
	c.pending = nil
	c.activeWidget = model.WidgetNone
	c.events.widgetChanged(model.WidgetNone)

	c.appendLocked(model.Message{
		ID:             c.newID(),
		Role:           model.RoleUser,
		Text:           confirmationText(pending.Name, values),
		Timestamp:      c.now(),
		IsSystemAction: true,
	})
	c.mu.Unlock()

	return c.runTurn(ctx, transport.Input{ToolResult: &model.ToolResult{
		CallID: pending.CallID,
		Name:   pending.Name,
		Result: values,
	}})
}

// SelectRecommendation sets the card's trip as the proposed trip and tells
// the assistant about the choice in a visible user turn.
func (c *Controller) SelectRecommendation(ctx context.Context, rec trip.Recommendation) error {
	c.mu.Lock()
	p := &trip.Proposal{
		Destination:   rec.Destination,
		EstimatedCost: rec.TotalCost,
		EstimatedCo2:  rec.Co2Kg,
		TransportMode: rec.TransportMode,
		Notes:         rec.Description,
	}
	c.proposal = p
	c.events.proposalChanged(p)
	c.mu.Unlock()

	return c.sendUserMessage(ctx, fmt.Sprintf("I'll take this option: %s", rec.Title), true)
}

// AcceptProposedTrip materialises the current proposal into a Trip, clears
// the proposal and confirms in chat. Persisting the trip is the caller's job.
func (c *Controller) AcceptProposedTrip() (trip.Trip, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proposal == nil {
		return trip.Trip{}, ErrNoProposal
	}
	t := trip.FromProposal(*c.proposal, c.newID())
	c.proposal = nil
	c.events.proposalChanged(nil)

	c.appendLocked(model.Message{
		ID:        c.newID(),
		Role:      model.RoleModel,
		Text:      fmt.Sprintf("✅ Your trip to **%s** has been planned!", t.Destination),
		Timestamp: c.now(),
	})
	return t, nil
}

// ===== continuation loop =====

// runTurn drives one full turn: it may chain several tool-call round trips
// but ends as soon as a turn is plain text (complete) or suspends on a
// widget. The chain is bounded so a misbehaving model cannot loop forever.
func (c *Controller) runTurn(ctx context.Context, input transport.Input) error {
	c.setBusy(true)
	defer c.setBusy(false)

	for hop := 0; ; hop++ {
		if hop > c.cfg.MaxToolCalls {
			err := fmt.Errorf("chained tool call limit (%d) reached", c.cfg.MaxToolCalls)
			logx.Error().Int("max_tool_calls", c.cfg.MaxToolCalls).Msg("aborting turn: tool call chain too long")
			c.appendFailure(err)
			return err
		}

		placeholderID := c.appendPlaceholder()
		res, err := c.session.Send(ctx, input, func(fragment string) {
			c.appendFragment(placeholderID, fragment)
		})
		if err != nil {
			c.removeIfEmpty(placeholderID)
			c.appendFailure(err)
			return err
		}

		if len(res.ToolCalls) == 0 {
			c.completeTurn(placeholderID, res)
			c.maybeExtract()
			return nil
		}

		call := res.ToolCalls[0]
		if len(res.ToolCalls) > 1 {
			// Deliberate simplification: only the first call is acted on.
			logx.Debug().Int("tool_calls", len(res.ToolCalls)).Str("acted_on", call.Name).Msg("multiple tool calls in one turn; acting on first only")
		}

		outcome := c.dispatcher.Dispatch(ctx, call)

		switch {
		case outcome.Suspend:
			c.removeIfEmpty(placeholderID)
			c.suspendOn(call, outcome.Widget)
			return nil
		case outcome.Recommendations != nil:
			c.attachRecommendations(placeholderID, outcome.Recommendations)
		default:
			c.removeIfEmpty(placeholderID)
			if outcome.Notice != "" {
				c.appendModelText(outcome.Notice)
			}
		}

		// Same-turn continuation: the tool result goes back into the
		// session as a non-user-visible delta.
		input = transport.Input{ToolResult: &model.ToolResult{
			CallID: call.ID,
			Name:   call.Name,
			Result: outcome.Result,
		}}
	}
}

// suspendOn parks the loop on a widget. Pending call and widget are set
// together under the lock so observers never see them disagree.
func (c *Controller) suspendOn(call model.ToolCall, w model.WidgetKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = &model.PendingToolCall{Name: call.Name, CallID: call.ID}
	c.activeWidget = w
	c.events.widgetChanged(w)
}

// completeTurn finalises a plain-text turn: the placeholder keeps the full
// text (or is discarded when the turn produced none) and the grounding
// citations of the turn replace the previous ones.
func (c *Controller) completeTurn(placeholderID string, res *transport.TurnResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx := c.indexLocked(placeholderID); idx >= 0 {
		if res.Text == "" {
			c.removeLocked(idx)
		} else if c.messages[idx].Text != res.Text {
			c.messages[idx].Text = res.Text
			c.events.messageUpdated(placeholderID, res.Text)
		}
	}

	c.sources = res.Sources
	c.events.sourcesChanged(res.Sources)
}

// maybeExtract fires the background trip extraction when enough visible
// dialogue has accumulated and no widget is open. The goroutine's completion
// is the only write that happens concurrently with a following turn;
// last-write-wins by design.
func (c *Controller) maybeExtract() {
	if c.extractor == nil {
		return
	}

	c.mu.Lock()
	transcript := c.transcriptLocked()
	widgetOpen := c.activeWidget != model.WidgetNone
	c.mu.Unlock()

	if widgetOpen || len(transcript) < c.cfg.ExtractMinChars {
		return
	}

	go func() {
		p, err := c.extractor.Extract(context.Background(), transcript)
		if err != nil {
			logx.Debug().Err(err).Msg("trip extraction failed; ignoring")
			return
		}
		if p == nil {
			return
		}
		c.mu.Lock()
		c.proposal = p
		c.events.proposalChanged(p)
		c.mu.Unlock()
	}()
}

// appendFailure converts a turn failure into a single chat message. Rate
// limit exhaustion gets its own wording; everything else a generic apology.
func (c *Controller) appendFailure(err error) {
	text := genericFailureText
	if errx.IsRateLimited(err) {
		text = rateLimitFailureText
	}
	logx.Error().Err(err).Msg("turn failed")
	c.appendModelText(text)
}

// ===== state helpers =====

func (c *Controller) setBusy(b bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy == b {
		return
	}
	c.busy = b
	c.events.busyChanged(b)
}

func (c *Controller) appendPlaceholder() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.newID()
	c.appendLocked(model.Message{
		ID:        id,
		Role:      model.RoleModel,
		Timestamp: c.now(),
	})
	return id
}

func (c *Controller) appendFragment(id, fragment string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexLocked(id)
	if idx < 0 {
		return
	}
	c.messages[idx].Text += fragment
	c.events.messageUpdated(id, c.messages[idx].Text)
}

func (c *Controller) appendModelText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(model.Message{
		ID:        c.newID(),
		Role:      model.RoleModel,
		Text:      text,
		Timestamp: c.now(),
	})
}

// attachRecommendations pins the cards onto the current model message,
// giving it a default text when the model produced none.
func (c *Controller) attachRecommendations(id string, recs []trip.Recommendation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexLocked(id)
	if idx < 0 {
		return
	}
	if c.messages[idx].Text == "" {
		c.messages[idx].Text = "I found the following options for you:"
	}
	c.messages[idx].Recommendations = recs
	c.events.messageUpdated(id, c.messages[idx].Text)
}

func (c *Controller) removeIfEmpty(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexLocked(id)
	if idx >= 0 && strings.TrimSpace(c.messages[idx].Text) == "" {
		c.removeLocked(idx)
	}
}

func (c *Controller) appendLocked(msg model.Message) {
	c.messages = append(c.messages, msg)
	c.events.messageAppended(msg)
}

func (c *Controller) indexLocked(id string) int {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) removeLocked(idx int) {
	id := c.messages[idx].ID
	c.messages = append(c.messages[:idx], c.messages[idx+1:]...)
	c.events.messageRemoved(id)
}

// transcriptLocked renders the visible conversation for extraction.
func (c *Controller) transcriptLocked() string {
	var sb strings.Builder
	for _, m := range c.messages {
		if m.Text == "" {
			continue
		}
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// ===== read accessors =====

// Messages returns a snapshot of the conversation history.
func (c *Controller) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Controller) IsBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Controller) ActiveWidget() model.WidgetKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeWidget
}

// PendingToolCall returns a copy of the in-flight tool call, or nil.
func (c *Controller) PendingToolCall() *model.PendingToolCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return nil
	}
	p := *c.pending
	return &p
}

// Proposal returns a copy of the proposed trip, or nil.
func (c *Controller) Proposal() *trip.Proposal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proposal == nil {
		return nil
	}
	p := *c.proposal
	return &p
}

// Sources returns the grounding citations of the most recent completed turn.
func (c *Controller) Sources() []model.GroundingSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.GroundingSource, len(c.sources))
	copy(out, c.sources)
	return out
}

// confirmationText renders the synthetic user message for a widget
// submission, mirroring what the widget collected.
func confirmationText(toolName string, values map[string]any) string {
	switch toolName {
	case tools.ToolRequestPersonCount:
		if count, ok := values["count"]; ok {
			return fmt.Sprintf("%v travelers selected.", count)
		}
	case tools.ToolRequestTripDetails:
		dest, _ := values["destination"].(string)
		if dest == "" {
			dest = "Inspiration (open)"
		}
		var window string
		if flexible, _ := values["isFlexible"].(bool); flexible {
			season, _ := values["preferredSeason"].(string)
			if season == "" {
				season = "flexible timing"
			}
			window = fmt.Sprintf("ca. %v days (%s)", values["durationDays"], season)
		} else {
			window = fmt.Sprintf("%v - %v", values["startDate"], values["endDate"])
		}
		text := fmt.Sprintf("Search: %s | %s", dest, window)
		if budget, ok := values["tripBudget"]; ok && fmt.Sprint(budget) != "" {
			text += fmt.Sprintf(", budget: %v EUR", budget)
		}
		return text
	}
	return "Details sent."
}
