package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the widget gateway configuration
type Config struct {
	Port string

	// External webhook endpoints
	LookupUserURL     string
	SaveProfileURL    string
	SaveCallRecordURL string
	ChatbotURL        string
	ContactFormURL    string
	WebhookTimeout    time.Duration

	// Voice SDK configuration
	VoiceServerURL  string
	VoiceAPIKey     string
	AssistantID     string
	CallSource      string
	ConnectTimeout  time.Duration // max wait in "connecting" before the call is abandoned
	RateLimitWindow time.Duration // cool-down between calls per visitor

	// Redis configuration for the visitor store (empty host selects the in-memory store)
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Post-call feedback card auto-dismiss countdown
	FeedbackDismissAfter time.Duration

	// Chat relay throttle (messages per minute per session)
	ChatMessagesPerMinute int

	// Idle flow eviction
	FlowIdleTimeout time.Duration
}

// LoadConfig loads configuration from environment variables.
// Note: .env file is loaded in main.go for local development using godotenv.Load()
func LoadConfig() *Config {
	return &Config{
		Port: getEnvOrDefault("PORT", "8082"),

		LookupUserURL:     getEnvOrDefault("WEBHOOK_LOOKUP_USER_URL", ""),
		SaveProfileURL:    getEnvOrDefault("WEBHOOK_SAVE_PROFILE_URL", ""),
		SaveCallRecordURL: getEnvOrDefault("WEBHOOK_SAVE_CALL_RECORD_URL", ""),
		ChatbotURL:        getEnvOrDefault("WEBHOOK_CHATBOT_URL", ""),
		ContactFormURL:    getEnvOrDefault("WEBHOOK_CONTACT_FORM_URL", ""),
		WebhookTimeout:    time.Duration(getEnvAsIntOrDefault("WEBHOOK_TIMEOUT_SECONDS", 10)) * time.Second,

		VoiceServerURL:  getEnvOrDefault("VOICE_SERVER_URL", ""),
		VoiceAPIKey:     getEnvOrDefault("VOICE_API_KEY", ""),
		AssistantID:     getEnvOrDefault("VOICE_ASSISTANT_ID", ""),
		CallSource:      getEnvOrDefault("VOICE_CALL_SOURCE", "website_widget"),
		ConnectTimeout:  time.Duration(getEnvAsIntOrDefault("VOICE_CONNECT_TIMEOUT_SECONDS", 30)) * time.Second,
		RateLimitWindow: time.Duration(getEnvAsIntOrDefault("CALL_RATE_LIMIT_MINUTES", 60)) * time.Minute,

		RedisHost:     getEnvOrDefault("REDIS_HOST", ""),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsIntOrDefault("REDIS_DB", 0),

		FeedbackDismissAfter: time.Duration(getEnvAsIntOrDefault("FEEDBACK_DISMISS_SECONDS", 15)) * time.Second,

		ChatMessagesPerMinute: getEnvAsIntOrDefault("CHAT_MESSAGES_PER_MINUTE", 20),

		FlowIdleTimeout: time.Duration(getEnvAsIntOrDefault("FLOW_IDLE_TIMEOUT_MINUTES", 120)) * time.Minute,
	}
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
