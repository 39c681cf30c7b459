package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/NexaFlowAI/voice-widget-service/internal/config"
	"github.com/NexaFlowAI/voice-widget-service/internal/handler"
	"github.com/NexaFlowAI/voice-widget-service/internal/services/callflow"
	"github.com/NexaFlowAI/voice-widget-service/internal/services/chat"
	"github.com/NexaFlowAI/voice-widget-service/internal/store"
	"github.com/NexaFlowAI/voice-widget-service/internal/voice"
	"github.com/NexaFlowAI/voice-widget-service/internal/webhook"
	"github.com/NexaFlowAI/voice-widget-service/pkg/logger"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Server represents the voice widget gateway server
type Server struct {
	config         *config.Config
	router         *mux.Router
	handlerManager *handler.HandlerManager
}

// NewServer creates a new voice widget gateway server
func NewServer(cfg *config.Config) *Server {
	// Initialize zap logger and redirect stdlib log to it
	if _, err := logger.Init(os.Getenv("LOG_ENV")); err != nil {
		logger.Base().Error("Failed to initialize zap logger, falling back to std log")
	}

	router := mux.NewRouter()

	visitorStore := newVisitorStore(cfg)

	webhooks := webhook.NewClient(webhook.Endpoints{
		LookupUser:     cfg.LookupUserURL,
		SaveProfile:    cfg.SaveProfileURL,
		SaveCallRecord: cfg.SaveCallRecordURL,
		Chatbot:        cfg.ChatbotURL,
		ContactForm:    cfg.ContactFormURL,
	}, cfg.WebhookTimeout)

	flowConfig := callflow.FlowConfig{
		AssistantID:          cfg.AssistantID,
		CallSource:           cfg.CallSource,
		ConnectTimeout:       cfg.ConnectTimeout,
		RateLimitWindow:      cfg.RateLimitWindow,
		FeedbackDismissAfter: cfg.FeedbackDismissAfter,
	}
	flows := callflow.NewManager(flowConfig, visitorStore, webhooks, func() voice.Client {
		return voice.NewWebsocketClient(cfg.VoiceServerURL, cfg.VoiceAPIKey)
	})

	chatService := chat.NewService(visitorStore, webhooks, cfg.ChatMessagesPerMinute)

	// Drop per-visitor flows that have been idle for a while, and release
	// the chat throttle state along with each evicted flow
	flows.OnEvict(chatService.ReleaseVisitor)
	go flows.StartEvictionRoutine(
		context.Background(),
		10*time.Minute,
		cfg.FlowIdleTimeout,
	)

	handlerManager := handler.NewHandlerManager(cfg, flows, chatService, webhooks)
	handlerManager.SetupAllRoutes(router)

	return &Server{
		config:         cfg,
		router:         router,
		handlerManager: handlerManager,
	}
}

// newVisitorStore selects Redis when configured, otherwise the in-memory
// store (single-instance deployments and local development).
func newVisitorStore(cfg *config.Config) store.Store {
	if cfg.RedisHost == "" {
		logger.Base().Info("REDIS_HOST not set, using in-memory visitor store")
		return store.NewMemoryStore()
	}

	redisStore, err := store.NewRedisStore(store.RedisOptions{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Base().Warn("failed to connect to redis, falling back to in-memory visitor store",
			zap.Error(err))
		return store.NewMemoryStore()
	}

	logger.Base().Info("redis visitor store initialized",
		zap.String("host", cfg.RedisHost), zap.String("port", cfg.RedisPort))
	return redisStore
}

// Start starts the voice widget gateway server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.config.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Base().Info("Starting server", zap.String("addr", addr))
	return server.ListenAndServe()
}

func main() {
	// Load .env file for local development if it exists.
	// This will not override environment variables set by Helm/Docker.
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: .env file not found or skipped (expected in production): %v", err)
	}

	cfg := config.LoadConfig()
	fmt.Printf("🚀 Starting NexaFlow Voice Widget Service on port %s\n", cfg.Port)

	server := NewServer(cfg)
	if server == nil {
		log.Fatal("❌ Failed to create server")
	}
	logger.Base().Info("✅ Server initialized successfully",
		zap.String("port", cfg.Port),
		zap.String("assistant_id", cfg.AssistantID))

	if err := server.Start(); err != nil {
		log.Fatalf("❌ Server failed to start: %v", err)
	}
}
