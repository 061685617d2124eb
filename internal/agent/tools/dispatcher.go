package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ecotravel/server/internal/agent/model"
	errx "github.com/ecotravel/server/internal/core/errx"
	"github.com/ecotravel/server/internal/trip"
	logx "github.com/ecotravel/server/pkg/logger"
)

const dateLayout = "2006-01-02"

var iataPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Outcome is the result of dispatching one tool call.
//
// Exactly one of three shapes occurs:
//   - Suspend: a widget tool; the caller renders Widget and waits for an
//     explicit user submission before anything is sent back to the model.
//   - Recommendations non-nil: displayRecommendations; the caller attaches the
//     cards to a model message and feeds Result back without a visible turn.
//   - Plain Result: fetch tools; Result is either the reduced payload or an
//     "ERROR: ..." string the model is expected to recover from. Notice, when
//     set, is additionally surfaced to the user as an assistant message.
type Outcome struct {
	Suspend         bool
	Widget          model.WidgetKind
	Recommendations []trip.Recommendation
	Result          any
	Notice          string
}

// Dispatcher executes tool calls. It holds no conversation state; the
// controller owns pending-call and widget bookkeeping.
type Dispatcher struct {
	weather *WeatherClient
	flights *SerpFlightsClient
	hotels  *SerpHotelsClient
	search  model.SearchConfig
	// apiKey is the user's SerpApi key; empty disables flight/hotel search.
	apiKey string
	now    func() time.Time
}

func NewDispatcher(weather *WeatherClient, flights *SerpFlightsClient, hotels *SerpHotelsClient, search model.SearchConfig, apiKey string) *Dispatcher {
	return &Dispatcher{
		weather: weather,
		flights: flights,
		hotels:  hotels,
		search:  search,
		apiKey:  apiKey,
		now:     time.Now,
	}
}

// WithClock overrides the dispatcher's notion of "today" (tests).
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Dispatch executes one tool call. It never returns an error: every failure
// is folded into an "ERROR: ..." tool result so the dialogue can adapt.
func (d *Dispatcher) Dispatch(ctx context.Context, call model.ToolCall) Outcome {
	logx.Debug().Str("tool_name", call.Name).Str("call_id", call.ID).Msg("dispatching tool call")

	switch call.Name {
	case ToolRequestPersonCount:
		return Outcome{Suspend: true, Widget: model.WidgetPersonCount}
	case ToolRequestTripDetails:
		return Outcome{Suspend: true, Widget: model.WidgetTripDetails}
	case ToolDisplayRecommendations:
		return d.displayRecommendations(call.Args)
	case ToolGetDestinationWeather:
		return d.destinationWeather(ctx, call.Args)
	case ToolSearchFlights:
		return d.searchFlights(ctx, call.Args)
	case ToolSearchHotels:
		return d.searchHotels(ctx, call.Args)
	default:
		// Hallucinated or malformed tool call; give the model a compact,
		// structured nudge instead of failing the turn.
		logx.Warn().Str("tool_name", call.Name).Msg("unknown tool call; returning fallback result")
		return Outcome{Result: fmt.Sprintf(`{"error":"unknown_tool","name":%q,"note":"ignored"}`, call.Name)}
	}
}

func (d *Dispatcher) displayRecommendations(args map[string]any) Outcome {
	raw, err := json.Marshal(args)
	if err != nil {
		return Outcome{Result: fmt.Sprintf("ERROR: unreadable recommendations payload: %v", err)}
	}
	var payload struct {
		Recommendations []trip.Recommendation `json:"recommendations"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Outcome{Result: fmt.Sprintf("ERROR: invalid recommendations payload: %v", err)}
	}
	if len(payload.Recommendations) == 0 {
		return Outcome{Result: "ERROR: recommendations array is empty"}
	}
	for i, rec := range payload.Recommendations {
		if err := validateRecommendation(rec); err != nil {
			return Outcome{Result: fmt.Sprintf("ERROR: recommendation %d invalid: %v", i, err)}
		}
	}

	return Outcome{
		Recommendations: payload.Recommendations,
		Result:          "options_displayed",
	}
}

func validateRecommendation(rec trip.Recommendation) error {
	switch {
	case rec.Title == "":
		return fmt.Errorf("missing title")
	case rec.Destination == "":
		return fmt.Errorf("missing destination")
	case rec.Description == "":
		return fmt.Errorf("missing description")
	case rec.TransportMode == "":
		return fmt.Errorf("missing transportMode")
	case rec.ImageKeyword == "":
		return fmt.Errorf("missing imageKeyword")
	case rec.TotalCost < 0:
		return fmt.Errorf("negative totalCost")
	case rec.Co2Kg < 0:
		return fmt.Errorf("negative co2Kg")
	}
	return nil
}

func (d *Dispatcher) destinationWeather(ctx context.Context, args map[string]any) Outcome {
	location := argString(args, "locationName")
	lat, latOK := argFloat(args, "latitude")
	lon, lonOK := argFloat(args, "longitude")
	if !latOK || !lonOK {
		return Outcome{Result: "ERROR: latitude and longitude are required numbers"}
	}

	report, err := d.weather.Current(ctx, location, lat, lon)
	if err != nil {
		logx.Warn().Err(err).Str("location", location).Msg("weather lookup failed")
		return Outcome{Result: fmt.Sprintf("ERROR: weather lookup failed: %v", err)}
	}
	return Outcome{Result: report}
}

func (d *Dispatcher) searchFlights(ctx context.Context, args map[string]any) Outcome {
	if d.apiKey == "" {
		return d.missingKeyOutcome()
	}

	origin := strings.ToUpper(argString(args, "origin"))
	destination := strings.ToUpper(argString(args, "destination"))
	if !iataPattern.MatchString(origin) || !iataPattern.MatchString(destination) {
		return Outcome{Result: fmt.Sprintf(
			"ERROR: invalid airport code (origin=%q, destination=%q). Use 3-letter IATA codes like 'MUC' or 'JFK', not city names.",
			origin, destination)}
	}

	departure := argString(args, "departureDate")
	today := d.now().Format(dateLayout)
	if _, err := time.Parse(dateLayout, departure); err != nil {
		return Outcome{Result: fmt.Sprintf("ERROR: departureDate %q is not a valid YYYY-MM-DD date. Today is %s.", departure, today)}
	}
	if departure < today {
		// No network call for past dates; tell the model what day it is.
		return Outcome{Result: fmt.Sprintf("ERROR: departureDate %s is in the past. Today is %s. Ask the user for a future date.", departure, today)}
	}

	options, err := d.flights.Search(ctx, d.apiKey, FlightQuery{
		Origin:        origin,
		Destination:   destination,
		DepartureDate: departure,
		ReturnDate:    argString(args, "returnDate"),
		Currency:      d.search.Currency,
		Locale:        d.search.Locale,
	})
	if err != nil {
		logx.Warn().Err(err).Str("origin", origin).Str("destination", destination).Msg("flight search failed")
		return Outcome{Result: "ERROR: flight search failed: " + err.Error() + flightHints(err.Error())}
	}
	if len(options) == 0 {
		return Outcome{Result: "ERROR: no flights found for this route and date"}
	}
	return Outcome{Result: options}
}

func (d *Dispatcher) searchHotels(ctx context.Context, args map[string]any) Outcome {
	if d.apiKey == "" {
		return d.missingKeyOutcome()
	}

	query := strings.TrimSpace(argString(args, "q"))
	if query == "" {
		return Outcome{Result: "ERROR: q (location query) is required"}
	}
	adults, _ := argInt(args, "adults")

	options, err := d.hotels.Search(ctx, d.apiKey, HotelQuery{
		Query:          query,
		CheckInDate:    argString(args, "check_in_date"),
		CheckOutDate:   argString(args, "check_out_date"),
		Adults:         adults,
		VacationRental: argString(args, "accommodation_type") == "vacation_rental",
		Currency:       d.search.Currency,
		Locale:         d.search.Locale,
	})
	if err != nil {
		logx.Warn().Err(err).Str("query", query).Msg("hotel search failed")
		return Outcome{Result: "ERROR: hotel search failed: " + err.Error() + hotelHints(err.Error())}
	}
	if len(options) == 0 {
		return Outcome{Result: "ERROR: no properties found for this query and dates"}
	}
	return Outcome{Result: options}
}

// missingKeyOutcome reports an absent search key both ways: a visible notice
// so the user can fix it, and an ERROR result so the model adapts its answer.
func (d *Dispatcher) missingKeyOutcome() Outcome {
	logx.Warn().Err(&errx.PreconditionError{Reason: "search API key not configured"}).Msg("search tool rejected")
	return Outcome{
		Notice: "Live flight and hotel search needs a search API key. Please configure one in the settings.",
		Result: "ERROR: no search API key configured. Tell the user to add a key in the settings; do not retry the search.",
	}
}

// flightHints appends targeted guidance for known misuse patterns of the
// flights engine.
func flightHints(errText string) string {
	lower := strings.ToLower(errText)
	var hints []string
	if strings.Contains(lower, "departure_id") || strings.Contains(lower, "arrival_id") {
		hints = append(hints, "Airport codes must be 3-letter IATA codes like 'MUC', not city names.")
	}
	if strings.Contains(lower, "return_date") {
		hints = append(hints, "A round trip needs a return date; provide returnDate or search one-way instead.")
	}
	if len(hints) == 0 {
		return ""
	}
	return " Hint: " + strings.Join(hints, " ")
}

func hotelHints(errText string) string {
	lower := strings.ToLower(errText)
	if strings.Contains(lower, "check_in_date") || strings.Contains(lower, "check_out_date") {
		return " Hint: check-in and check-out dates must be YYYY-MM-DD and check-out must be after check-in."
	}
	return ""
}

// ===== argument coercion helpers =====
// Model-produced arguments arrive as loosely typed JSON; coerce defensively
// and never fail hard on a fixable shape.

func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func argFloat(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func argInt(args map[string]any, key string) (int, bool) {
	f, ok := argFloat(args, key)
	return int(f), ok
}
