package model

// ================ Config ================

// ChatModelConfig selects and tunes the Gemini model backing the chat session
// and the trip extractor.
type ChatModelConfig struct {
	Model       string  `envconfig:"CHAT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"CHAT_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"CHAT_TEMPERATURE" default:"0.4"`
}

// RetryConfig bounds the rate-limit retry ladder. Waits grow linearly:
// BackoffStepSeconds, 2x, 3x, ... up to MaxRetries attempts.
type RetryConfig struct {
	MaxRetries         int `envconfig:"CHAT_MAX_RETRIES" default:"3"`
	BackoffStepSeconds int `envconfig:"CHAT_BACKOFF_STEP_SECONDS" default:"2"`
}

// ConversationConfig tunes the orchestration loop.
type ConversationConfig struct {
	// MaxToolCalls caps chained tool calls within a single turn so a
	// misbehaving model cannot loop forever.
	MaxToolCalls int `envconfig:"CONVERSATION_TOOL_MAX_CALLS" default:"10"`
	// ExtractMinChars is the visible-transcript length after which the
	// background trip extraction kicks in.
	ExtractMinChars int `envconfig:"CONVERSATION_EXTRACT_MIN_CHARS" default:"500"`
}

// SearchConfig parametrises the SerpApi-backed flight and hotel searches.
// The API key itself lives in the user settings, not here.
type SearchConfig struct {
	Currency string `envconfig:"SEARCH_CURRENCY" default:"EUR"`
	Locale   string `envconfig:"SEARCH_LOCALE" default:"de"`
}
