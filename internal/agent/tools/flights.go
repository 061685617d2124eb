package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"

	"github.com/samber/lo"

	errx "github.com/ecotravel/server/internal/core/errx"
	logx "github.com/ecotravel/server/pkg/logger"
)

const defaultSerpBaseURL = "https://serpapi.com"

// maxSearchResults bounds every external search reduction. Unbounded provider
// payloads must never reach the model context.
const maxSearchResults = 5

// FlightQuery describes one flight search. Origin and destination are
// 3-letter IATA codes; an empty ReturnDate means one-way.
type FlightQuery struct {
	Origin        string
	Destination   string
	DepartureDate string
	ReturnDate    string
	Currency      string
	Locale        string
}

// FlightOption is a reduced flight offer: price, carrier, duration, derived
// CO2 and a durable deep link back into the provider's UI.
type FlightOption struct {
	PriceEUR  float64 `json:"price"`
	Airline   string  `json:"airline"`
	Duration  string  `json:"duration"`
	Co2Kg     float64 `json:"co2Kg,omitempty"`
	DeepLink  string  `json:"link"`
	RoundTrip bool    `json:"roundTrip"`
}

type serpFlightLeg struct {
	Airline string `json:"airline"`
}

type serpFlight struct {
	Flights         []serpFlightLeg `json:"flights"`
	TotalDuration   int             `json:"total_duration"` // minutes
	Price           float64         `json:"price"`
	CarbonEmissions struct {
		ThisFlight float64 `json:"this_flight"` // grams
	} `json:"carbon_emissions"`
}

// SerpFlightsClient queries the Google Flights engine via SerpApi.
type SerpFlightsClient struct {
	baseURL string
	httpc   Doer
}

func NewSerpFlightsClient(httpc Doer) *SerpFlightsClient {
	return &SerpFlightsClient{baseURL: defaultSerpBaseURL, httpc: httpc}
}

func (c *SerpFlightsClient) WithBaseURL(base string) *SerpFlightsClient {
	c.baseURL = base
	return c
}

// Search runs one flight search and reduces the provider response to at most
// maxSearchResults offers.
func (c *SerpFlightsClient) Search(ctx context.Context, apiKey string, q FlightQuery) ([]FlightOption, error) {
	params := url.Values{}
	params.Set("engine", "google_flights")
	params.Set("departure_id", q.Origin)
	params.Set("arrival_id", q.Destination)
	params.Set("outbound_date", q.DepartureDate)
	roundTrip := q.ReturnDate != ""
	if roundTrip {
		params.Set("return_date", q.ReturnDate)
	} else {
		// type 2 = one-way; the engine defaults to round trip and then
		// rejects requests without a return date.
		params.Set("type", "2")
	}
	params.Set("currency", q.Currency)
	params.Set("hl", q.Locale)
	params.Set("api_key", apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search.json?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build flights request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &errx.ExternalAPIError{Provider: "google-flights", Err: err}
	}
	defer resp.Body.Close()

	var payload struct {
		Error          string `json:"error"`
		SearchMetadata struct {
			GoogleFlightsURL string `json:"google_flights_url"`
		} `json:"search_metadata"`
		BestFlights  []serpFlight `json:"best_flights"`
		OtherFlights []serpFlight `json:"other_flights"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &errx.ExternalAPIError{Provider: "google-flights", Err: fmt.Errorf("malformed body: %w", err)}
	}
	if payload.Error != "" {
		return nil, &errx.ExternalAPIError{Provider: "google-flights", Err: fmt.Errorf("%s", payload.Error)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &errx.ExternalAPIError{Provider: "google-flights", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	all := lo.Slice(append(payload.BestFlights, payload.OtherFlights...), 0, maxSearchResults)
	options := lo.Map(all, func(f serpFlight, _ int) FlightOption {
		airlines := lo.Uniq(lo.Map(f.Flights, func(leg serpFlightLeg, _ int) string {
			return leg.Airline
		}))
		opt := FlightOption{
			PriceEUR:  f.Price,
			Airline:   joinNonEmpty(airlines),
			Duration:  formatMinutes(f.TotalDuration),
			DeepLink:  payload.SearchMetadata.GoogleFlightsURL,
			RoundTrip: roundTrip,
		}
		if f.CarbonEmissions.ThisFlight > 0 {
			opt.Co2Kg = math.Round(f.CarbonEmissions.ThisFlight / 1000)
		}
		return opt
	})

	logx.Debug().
		Str("origin", q.Origin).
		Str("destination", q.Destination).
		Int("results", len(options)).
		Msg("flight search reduced")
	return options, nil
}

func formatMinutes(minutes int) string {
	if minutes <= 0 {
		return ""
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}

func joinNonEmpty(parts []string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += p
	}
	return out
}
