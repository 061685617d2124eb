package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"

	errx "github.com/ecotravel/server/internal/core/errx"
	logx "github.com/ecotravel/server/pkg/logger"
)

// HotelQuery describes one accommodation search.
type HotelQuery struct {
	Query          string
	CheckInDate    string
	CheckOutDate   string
	Adults         int
	VacationRental bool
	Currency       string
	Locale         string
}

// HotelOption is a reduced property offer.
type HotelOption struct {
	Name         string  `json:"name"`
	NightlyPrice float64 `json:"pricePerNight"`
	TotalPrice   float64 `json:"totalPrice"`
	Rating       float64 `json:"rating,omitempty"`
	Description  string  `json:"description,omitempty"`
	DeepLink     string  `json:"link"`
	EcoCertified bool    `json:"ecoCertified,omitempty"`
}

type serpProperty struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Link          string  `json:"link"`
	OverallRating float64 `json:"overall_rating"`
	EcoCertified  bool    `json:"eco_certified"`
	RatePerNight  struct {
		ExtractedLowest float64 `json:"extracted_lowest"`
	} `json:"rate_per_night"`
	TotalRate struct {
		ExtractedLowest float64 `json:"extracted_lowest"`
	} `json:"total_rate"`
}

// rentalQueryTerms are the phrases, per locale, whose absence triggers the
// query normalization for vacation-rental searches.
var rentalQueryTerms = map[string]string{
	"de": "Ferienwohnungen",
	"en": "vacation rentals",
}

// NormalizeHotelQuery prefixes the rental term when a vacation-rental search
// does not already mention one, so the engine surfaces rentals rather than
// hotels for plain city queries.
func NormalizeHotelQuery(q HotelQuery) HotelQuery {
	if !q.VacationRental {
		return q
	}
	term, ok := rentalQueryTerms[q.Locale]
	if !ok {
		term = rentalQueryTerms["en"]
	}
	lower := strings.ToLower(q.Query)
	for _, known := range rentalQueryTerms {
		if strings.Contains(lower, strings.ToLower(known)) {
			return q
		}
	}
	q.Query = term + " " + q.Query
	return q
}

// SerpHotelsClient queries the Google Hotels engine via SerpApi.
type SerpHotelsClient struct {
	baseURL string
	httpc   Doer
}

func NewSerpHotelsClient(httpc Doer) *SerpHotelsClient {
	return &SerpHotelsClient{baseURL: defaultSerpBaseURL, httpc: httpc}
}

func (c *SerpHotelsClient) WithBaseURL(base string) *SerpHotelsClient {
	c.baseURL = base
	return c
}

// Search runs one accommodation search and reduces the provider response to
// at most maxSearchResults properties.
func (c *SerpHotelsClient) Search(ctx context.Context, apiKey string, q HotelQuery) ([]HotelOption, error) {
	q = NormalizeHotelQuery(q)

	params := url.Values{}
	params.Set("engine", "google_hotels")
	params.Set("q", q.Query)
	params.Set("check_in_date", q.CheckInDate)
	params.Set("check_out_date", q.CheckOutDate)
	adults := q.Adults
	if adults <= 0 {
		adults = 1
	}
	params.Set("adults", strconv.Itoa(adults))
	if q.VacationRental {
		params.Set("vacation_rentals", "true")
	}
	params.Set("currency", q.Currency)
	params.Set("hl", q.Locale)
	params.Set("api_key", apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search.json?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build hotels request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &errx.ExternalAPIError{Provider: "google-hotels", Err: err}
	}
	defer resp.Body.Close()

	var payload struct {
		Error          string `json:"error"`
		SearchMetadata struct {
			GoogleHotelsURL string `json:"google_hotels_url"`
		} `json:"search_metadata"`
		Properties []serpProperty `json:"properties"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &errx.ExternalAPIError{Provider: "google-hotels", Err: fmt.Errorf("malformed body: %w", err)}
	}
	if payload.Error != "" {
		return nil, &errx.ExternalAPIError{Provider: "google-hotels", Err: fmt.Errorf("%s", payload.Error)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &errx.ExternalAPIError{Provider: "google-hotels", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	options := lo.Map(lo.Slice(payload.Properties, 0, maxSearchResults), func(p serpProperty, _ int) HotelOption {
		link := p.Link
		if link == "" {
			link = payload.SearchMetadata.GoogleHotelsURL
		}
		return HotelOption{
			Name:         p.Name,
			NightlyPrice: p.RatePerNight.ExtractedLowest,
			TotalPrice:   p.TotalRate.ExtractedLowest,
			Rating:       p.OverallRating,
			Description:  p.Description,
			DeepLink:     link,
			EcoCertified: p.EcoCertified,
		}
	})

	logx.Debug().Str("query", q.Query).Int("results", len(options)).Msg("hotel search reduced")
	return options, nil
}
