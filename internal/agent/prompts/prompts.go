package prompts

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/ecotravel/server/internal/trip"
)

//go:embed template/system_prompt.txt
var systemPromptTemplate string

//go:embed template/extract_prompt.txt
var extractPromptTemplate string

// GreetingTrigger is the hidden message that elicits the assistant's opening
// turn. It is sent once per conversation and never shown to the user.
const GreetingTrigger = "Hi! I'd like to plan a new trip."

var (
	systemTpl  = template.Must(template.New("system").Parse(systemPromptTemplate))
	extractTpl = template.Must(template.New("extract").Parse(extractPromptTemplate))
)

// RenderSystem builds the session's system instruction from the user's limits
// and the budget/CO2 already consumed by saved trips.
func RenderSystem(settings trip.UserSettings, trips []trip.Trip) (string, error) {
	vars := map[string]any{
		"AnnualBudget":   settings.AnnualBudget,
		"AnnualCo2Limit": settings.AnnualCo2Limit,
		"SpentBudget":    trip.SpentBudget(trips),
		"SpentCo2":       trip.SpentCo2(trips),
	}

	var sb strings.Builder
	if err := systemTpl.Execute(&sb, vars); err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return sb.String(), nil
}

// RenderExtract builds the one-shot structured-output prompt for the trip
// extractor from the raw conversation transcript.
func RenderExtract(transcript string) (string, error) {
	var sb strings.Builder
	if err := extractTpl.Execute(&sb, map[string]any{"Transcript": transcript}); err != nil {
		return "", fmt.Errorf("render extract prompt: %w", err)
	}
	return sb.String(), nil
}
