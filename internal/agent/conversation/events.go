package conversation

import (
	"github.com/ecotravel/server/internal/agent/model"
	"github.com/ecotravel/server/internal/trip"
)

// Events is the controller's outbound notification surface. A presentation
// layer subscribes by setting the callbacks it cares about; nil callbacks are
// skipped. The controller itself holds no rendering concerns.
//
// Callbacks fire while the controller lock is held, so subscribers must not
// call back into the controller from inside a handler.
type Events struct {
	// MessageAppended fires for every message added to history, including
	// the empty model placeholder a streaming turn writes into.
	MessageAppended func(msg model.Message)
	// MessageUpdated fires per streamed fragment with the text so far.
	MessageUpdated func(id string, text string)
	// MessageRemoved fires when an empty placeholder is discarded because
	// the turn produced a tool call without accompanying text.
	MessageRemoved func(id string)
	// WidgetChanged fires when a widget opens (Suspend) or closes (submit).
	WidgetChanged func(w model.WidgetKind)
	// BusyChanged mirrors the turn-in-flight flag.
	BusyChanged func(busy bool)
	// Status carries transient human-readable state, e.g. retry waits.
	Status func(status string)
	// SourcesChanged replaces the grounding citations of the latest turn.
	SourcesChanged func(sources []model.GroundingSource)
	// ProposalChanged fires when the proposed trip is set or cleared.
	ProposalChanged func(p *trip.Proposal)
}

func (e *Events) messageAppended(msg model.Message) {
	if e.MessageAppended != nil {
		e.MessageAppended(msg)
	}
}

func (e *Events) messageUpdated(id, text string) {
	if e.MessageUpdated != nil {
		e.MessageUpdated(id, text)
	}
}

func (e *Events) messageRemoved(id string) {
	if e.MessageRemoved != nil {
		e.MessageRemoved(id)
	}
}

func (e *Events) widgetChanged(w model.WidgetKind) {
	if e.WidgetChanged != nil {
		e.WidgetChanged(w)
	}
}

func (e *Events) busyChanged(busy bool) {
	if e.BusyChanged != nil {
		e.BusyChanged(busy)
	}
}

func (e *Events) status(s string) {
	if e.Status != nil {
		e.Status(s)
	}
}

func (e *Events) sourcesChanged(sources []model.GroundingSource) {
	if e.SourcesChanged != nil {
		e.SourcesChanged(sources)
	}
}

func (e *Events) proposalChanged(p *trip.Proposal) {
	if e.ProposalChanged != nil {
		e.ProposalChanged(p)
	}
}
