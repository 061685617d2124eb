package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ecotravel/server/internal/agent/conversation"
	"github.com/ecotravel/server/internal/agent/model"
	"github.com/ecotravel/server/internal/agent/prompts"
	"github.com/ecotravel/server/internal/agent/tools"
	"github.com/ecotravel/server/internal/agent/transport"
	"github.com/ecotravel/server/internal/core"
	"github.com/ecotravel/server/internal/trip"
	triprepo "github.com/ecotravel/server/internal/trip/repo"
	logx "github.com/ecotravel/server/pkg/logger"
	pkgredis "github.com/ecotravel/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the assistant example,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure
	Redis    pkgredis.Config
	StoreTTL string `envconfig:"STORE_TTL" default:"720h"`

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Assistant configs
	Chat         model.ChatModelConfig
	Retry        model.RetryConfig
	Conversation model.ConversationConfig
	Search       model.SearchConfig
}

func main() {
	ctx := context.Background()
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(envCfg.Environment)})

	rdb, err := envCfg.Redis.New()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	ttl, err := time.ParseDuration(envCfg.StoreTTL)
	if err != nil {
		log.Fatalf("Invalid STORE_TTL %q: %v", envCfg.StoreTTL, err)
	}
	store := triprepo.NewRedisTripRepository(rdb, ttl)

	settings, err := store.LoadSettings(ctx)
	if err != nil {
		log.Fatalf("Failed to load user settings: %v", err)
	}
	trips, err := store.ListTrips(ctx)
	if err != nil {
		log.Fatalf("Failed to load trips: %v", err)
	}

	systemPrompt, err := prompts.RenderSystem(settings, trips)
	if err != nil {
		log.Fatalf("Failed to render system prompt: %v", err)
	}

	client, err := transport.NewClient(ctx, transport.ClientConfig{
		APIKey:  envCfg.APIKey,
		BaseURL: envCfg.BaseURL,
	})
	if err != nil {
		log.Fatalf("Failed to create Gemini client: %v", err)
	}

	session, err := transport.NewGeminiSession(ctx, client, transport.SessionConfig{
		Model:             envCfg.Chat,
		SystemInstruction: systemPrompt,
		Declarations:      tools.Declarations(),
	})
	if err != nil {
		log.Fatalf("Failed to open chat session: %v", err)
	}

	httpc := &http.Client{Timeout: 20 * time.Second}
	dispatcher := tools.NewDispatcher(
		tools.NewWeatherClient(httpc),
		tools.NewSerpFlightsClient(httpc),
		tools.NewSerpHotelsClient(httpc),
		envCfg.Search,
		settings.SerpAPIKey,
	)

	events := conversation.Events{
		MessageAppended: func(msg model.Message) {
			if msg.Text == "" {
				return
			}
			fmt.Printf("\n[%s] %s\n", msg.Role, msg.Text)
		},
		MessageUpdated: func(id, text string) {
			// Streaming progress; the final text prints via the transcript dump.
		},
		WidgetChanged: func(w model.WidgetKind) {
			if w != model.WidgetNone {
				fmt.Printf("\n[widget] %s is awaiting input\n", w)
			}
		},
		Status: func(status string) {
			fmt.Printf("\n[status] %s\n", status)
		},
		SourcesChanged: func(sources []model.GroundingSource) {
			for _, s := range sources {
				fmt.Printf("  [source] %s — %s\n", s.Title, s.URI)
			}
		},
		ProposalChanged: func(p *trip.Proposal) {
			if p != nil {
				fmt.Printf("\n[proposal] %s (%.0f EUR, %.0f kg CO2)\n", p.Destination, p.EstimatedCost, p.EstimatedCo2)
			}
		},
	}

	retrying := transport.NewRetryPolicy(session, envCfg.Retry, events.Status)
	ctrl := conversation.New(conversation.Config{
		Session:    retrying,
		Dispatcher: dispatcher,
		Extractor:  conversation.NewExtractor(client, envCfg.Chat),
		Cfg:        envCfg.Conversation,
		Events:     events,
	})

	if err := ctrl.Start(ctx); err != nil {
		log.Fatalf("Failed to start conversation: %v", err)
	}

	steps := []struct {
		description string
		run         func() error
	}{
		{
			description: "Open-ended trip wish",
			run: func() error {
				return ctrl.SendUserMessage(ctx, "I'd like a relaxed week somewhere warm in October, ideally reachable by train from Munich.")
			},
		},
		{
			description: "Answer the traveler count widget if one opened",
			run: func() error {
				if ctrl.ActiveWidget() != model.WidgetPersonCount {
					return nil
				}
				return ctrl.SubmitWidget(ctx, model.WidgetPersonCount, map[string]any{"count": 2})
			},
		},
		{
			description: "Answer the trip details widget if one opened",
			run: func() error {
				if ctrl.ActiveWidget() != model.WidgetTripDetails {
					return nil
				}
				return ctrl.SubmitWidget(ctx, model.WidgetTripDetails, map[string]any{
					"destination":     "",
					"isFlexible":      true,
					"durationDays":    7,
					"preferredSeason": "October",
					"tripBudget":      900,
				})
			},
		},
		{
			description: "Narrow down",
			run: func() error {
				return ctrl.SendUserMessage(ctx, "The second option sounds good. How warm is it there right now?")
			},
		},
	}

	for i, step := range steps {
		fmt.Printf("\n── Step %d: %s ──\n", i+1, step.description)
		if err := step.run(); err != nil {
			log.Fatalf("Step %d failed: %v", i+1, err)
		}
	}

	if p := ctrl.Proposal(); p != nil {
		t, err := ctrl.AcceptProposedTrip()
		if err != nil {
			log.Fatalf("Failed to accept trip: %v", err)
		}
		if err := store.AddTrip(ctx, t); err != nil {
			log.Fatalf("Failed to persist trip: %v", err)
		}
		fmt.Printf("\nSaved trip %s to %s (%s - %s)\n", t.ID, t.Destination, t.StartDate, t.EndDate)
	}

	fmt.Printf("\nConversation finished with %d messages.\n", len(ctrl.Messages()))
}
