package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ecotravel/server/internal/agent/model"
	"github.com/ecotravel/server/internal/agent/prompts"
	"github.com/ecotravel/server/internal/trip"
	logx "github.com/ecotravel/server/pkg/logger"
)

// tripSchema constrains the extraction output to a trip proposal.
var tripSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"destination":   {Type: genai.TypeString, Description: "The main travel destination"},
		"estimatedCost": {Type: genai.TypeNumber, Description: "Estimated total cost in EUR"},
		"estimatedCo2":  {Type: genai.TypeNumber, Description: "Estimated CO2 emissions in kg"},
		"startDate":     {Type: genai.TypeString, Description: "Start date (YYYY-MM-DD) or 'TBD' if still flexible"},
		"endDate":       {Type: genai.TypeString, Description: "End date (YYYY-MM-DD) or 'TBD' if still flexible"},
		"transportMode": {Type: genai.TypeString, Description: "Main mode of transport (flight, train, car, ...)"},
		"notes":         {Type: genai.TypeString, Description: "Short summary of the trip"},
	},
	Required: []string{"destination", "estimatedCost", "estimatedCo2", "transportMode"},
}

// Extractor turns a freeform conversation transcript into a structured trip
// proposal with a single constrained model call. Its results are advisory:
// callers treat "no trip yet" and failures identically.
type Extractor struct {
	client    *genai.Client
	modelName string
}

func NewExtractor(client *genai.Client, cfg model.ChatModelConfig) *Extractor {
	return &Extractor{client: client, modelName: cfg.Model}
}

// Extract returns the agreed trip from the transcript, or nil when none has
// been agreed yet. A literal "NULL" answer and any parse failure both mean
// "no trip yet" and return (nil, nil); only transport failures return an error.
func (e *Extractor) Extract(ctx context.Context, transcript string) (*trip.Proposal, error) {
	prompt, err := prompts.RenderExtract(transcript)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.modelName, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   tripSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("trip extraction call: %w", err)
	}

	text := resp.Text()
	if text == "" || strings.Contains(text, "NULL") {
		return nil, nil
	}

	var p trip.Proposal
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		logx.Debug().Err(err).Msg("trip extraction produced unparseable JSON; treating as no trip")
		return nil, nil
	}
	if p.Destination == "" {
		return nil, nil
	}

	logx.Debug().Str("destination", p.Destination).Float64("estimated_cost", p.EstimatedCost).Msg("trip proposal extracted")
	return &p, nil
}
