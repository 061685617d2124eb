package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/ecotravel/server/internal/core/errx"
)

const flightsFixture = `{
	"search_metadata": {"google_flights_url": "https://www.google.com/travel/flights?q=MUC-LIS"},
	"best_flights": [
		{"flights": [{"airline": "Lufthansa"}, {"airline": "TAP"}], "total_duration": 195, "price": 142, "carbon_emissions": {"this_flight": 187000}},
		{"flights": [{"airline": "TAP"}, {"airline": "TAP"}], "total_duration": 150, "price": 168, "carbon_emissions": {"this_flight": 164500}}
	],
	"other_flights": [
		{"flights": [{"airline": "Ryanair"}], "total_duration": 45, "price": 89},
		{"flights": [{"airline": "Iberia"}], "total_duration": 310, "price": 120, "carbon_emissions": {"this_flight": 201000}},
		{"flights": [{"airline": "Vueling"}], "total_duration": 280, "price": 110},
		{"flights": [{"airline": "Swiss"}], "total_duration": 240, "price": 300}
	]
}`

func TestFlightSearchReducesResults(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Write([]byte(flightsFixture))
	}))
	defer srv.Close()

	c := NewSerpFlightsClient(srv.Client()).WithBaseURL(srv.URL)
	options, err := c.Search(context.Background(), "key-123", FlightQuery{
		Origin:        "MUC",
		Destination:   "LIS",
		DepartureDate: "2026-10-02",
		Currency:      "EUR",
		Locale:        "de",
	})
	require.NoError(t, err)

	// Six offers in the payload, capped at five.
	require.Len(t, options, 5)

	assert.Equal(t, "google_flights", gotQuery["engine"])
	assert.Equal(t, "MUC", gotQuery["departure_id"])
	assert.Equal(t, "LIS", gotQuery["arrival_id"])
	assert.Equal(t, "2026-10-02", gotQuery["outbound_date"])
	// One-way searches must be explicit, the engine defaults to round trip.
	assert.Equal(t, "2", gotQuery["type"])
	assert.Equal(t, "key-123", gotQuery["api_key"])

	first := options[0]
	assert.Equal(t, 142.0, first.PriceEUR)
	assert.Equal(t, "Lufthansa, TAP", first.Airline)
	assert.Equal(t, "3h 15m", first.Duration)
	assert.Equal(t, 187.0, first.Co2Kg) // grams reported by the engine, kg here
	assert.Equal(t, "https://www.google.com/travel/flights?q=MUC-LIS", first.DeepLink)
	assert.False(t, first.RoundTrip)

	// Duplicate carriers collapse to one.
	assert.Equal(t, "TAP", options[1].Airline)
	// Missing carbon data stays zero rather than inventing a number.
	assert.Zero(t, options[2].Co2Kg)
	assert.Equal(t, "45m", options[2].Duration)
}

func TestFlightSearchRoundTripParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2026-10-09", r.URL.Query().Get("return_date"))
		assert.Empty(t, r.URL.Query().Get("type"))
		w.Write([]byte(`{"best_flights": [{"flights": [{"airline": "TAP"}], "total_duration": 200, "price": 250}]}`))
	}))
	defer srv.Close()

	c := NewSerpFlightsClient(srv.Client()).WithBaseURL(srv.URL)
	options, err := c.Search(context.Background(), "k", FlightQuery{
		Origin:        "MUC",
		Destination:   "LIS",
		DepartureDate: "2026-10-02",
		ReturnDate:    "2026-10-09",
	})
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.True(t, options[0].RoundTrip)
}

func TestFlightSearchProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "Invalid departure_id. It must be an airport code."}`))
	}))
	defer srv.Close()

	c := NewSerpFlightsClient(srv.Client()).WithBaseURL(srv.URL)
	_, err := c.Search(context.Background(), "k", FlightQuery{Origin: "Munich", Destination: "LIS", DepartureDate: "2026-10-02"})
	require.Error(t, err)

	var apiErr *errx.ExternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "google-flights", apiErr.Provider)
	assert.Contains(t, err.Error(), "departure_id")
}

func TestFormatMinutes(t *testing.T) {
	assert.Equal(t, "", formatMinutes(0))
	assert.Equal(t, "59m", formatMinutes(59))
	assert.Equal(t, "1h 00m", formatMinutes(60))
	assert.Equal(t, "2h 05m", formatMinutes(125))
}
