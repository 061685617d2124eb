package tools

import (
	"google.golang.org/genai"
)

// Tool names. The dispatcher must fulfil the contract documented here for
// each name; the registry itself is purely descriptive.
const (
	ToolRequestPersonCount     = "requestPersonCount"
	ToolRequestTripDetails     = "requestTripDetails"
	ToolDisplayRecommendations = "displayRecommendations"
	ToolGetDestinationWeather  = "getDestinationWeather"
	ToolSearchFlights          = "searchFlights"
	ToolSearchHotels           = "searchHotels"
)

// Declarations returns the static tool catalogue handed to the chat session
// at creation time. Widget tools carry no parameters; they only open a UI
// surface and suspend the loop until the user submits it.
func Declarations() []*genai.FunctionDeclaration {
	return []*genai.FunctionDeclaration{
		{
			Name:        ToolRequestPersonCount,
			Description: "Triggers a UI widget for the user to input the number of travelers. Use this whenever you need to know how many people are traveling.",
		},
		{
			Name:        ToolRequestTripDetails,
			Description: "Triggers a detailed search form UI. Use this when the user wants to search for trips, even if the destination is vague (e.g., 'inspiration') or dates are flexible.",
		},
		{
			Name:        ToolDisplayRecommendations,
			Description: "Displays a list of visual trip cards to the user. Use this ONLY when you have found concrete travel options and want to present them.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"recommendations": {
						Type: genai.TypeArray,
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"title":              {Type: genai.TypeString, Description: "Short, punchy title (e.g. 'Train trip to Tuscany')"},
								"destination":        {Type: genai.TypeString, Description: "Place or region"},
								"description":        {Type: genai.TypeString, Description: "1-2 sentences on why this is great."},
								"totalCost":          {Type: genai.TypeNumber, Description: "Total price per person in EUR"},
								"co2Kg":              {Type: genai.TypeNumber, Description: "CO2 in kg"},
								"transportMode":      {Type: genai.TypeString, Description: "Train, flight, car, bus"},
								"imageKeyword":       {Type: genai.TypeString, Description: "An English keyword for image search (e.g. 'Tuscany landscape')"},
								"flightPrice":        {Type: genai.TypeNumber, Description: "Flight price per person in EUR, when known"},
								"accommodationPrice": {Type: genai.TypeNumber, Description: "Accommodation total in EUR, when known"},
								"flightLink":         {Type: genai.TypeString, Description: "Deep link to the flight offer, when known"},
								"accommodationLink":  {Type: genai.TypeString, Description: "Deep link to the accommodation offer, when known"},
								"accommodationType":  {Type: genai.TypeString, Description: "hotel or vacation_rental", Enum: []string{"hotel", "vacation_rental"}},
							},
							Required: []string{"title", "destination", "description", "totalCost", "co2Kg", "transportMode", "imageKeyword"},
						},
					},
				},
				Required: []string{"recommendations"},
			},
		},
		{
			Name:        ToolGetDestinationWeather,
			Description: "Gets the current weather forecast for a destination using an external API. Use this when the user asks about weather, climate, or best time to travel.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"locationName": {Type: genai.TypeString, Description: "Name of the city/region"},
					"latitude":     {Type: genai.TypeNumber, Description: "Latitude of the destination (approximate is fine)"},
					"longitude":    {Type: genai.TypeNumber, Description: "Longitude of the destination (approximate is fine)"},
				},
				Required: []string{"locationName", "latitude", "longitude"},
			},
		},
		{
			Name:        ToolSearchFlights,
			Description: "Searches for REAL, LIVE flight offers using the Google Flights engine. Use this when the user asks for flight prices or availability.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"origin":        {Type: genai.TypeString, Description: "3-letter IATA airport code (e.g. 'MUC', 'FRA'). DO NOT use city names."},
					"destination":   {Type: genai.TypeString, Description: "3-letter IATA airport code (e.g. 'LHR', 'JFK'). DO NOT use city names."},
					"departureDate": {Type: genai.TypeString, Description: "Date in YYYY-MM-DD format."},
					"returnDate":    {Type: genai.TypeString, Description: "Optional return date in YYYY-MM-DD format."},
				},
				Required: []string{"origin", "destination", "departureDate"},
			},
		},
		{
			Name:        ToolSearchHotels,
			Description: "Searches for REAL, LIVE hotel and vacation-rental offers using the Google Hotels engine. Use this when the user asks for accommodation, hotels, or places to stay.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"q":                  {Type: genai.TypeString, Description: "Location query (e.g. 'Hotels in Paris', 'Berlin'). Can be a city name."},
					"check_in_date":      {Type: genai.TypeString, Description: "Check-in date in YYYY-MM-DD format."},
					"check_out_date":     {Type: genai.TypeString, Description: "Check-out date in YYYY-MM-DD format."},
					"adults":             {Type: genai.TypeNumber, Description: "Number of adults (default is 1)."},
					"accommodation_type": {Type: genai.TypeString, Description: "Optional: 'hotel' (default) or 'vacation_rental'.", Enum: []string{"hotel", "vacation_rental"}},
				},
				Required: []string{"q", "check_in_date", "check_out_date"},
			},
		},
	}
}
