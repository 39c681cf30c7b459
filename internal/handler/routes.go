package handler

import (
	"encoding/json"
	"net/http"

	"github.com/NexaFlowAI/voice-widget-service/internal/config"
	"github.com/NexaFlowAI/voice-widget-service/internal/services/callflow"
	"github.com/NexaFlowAI/voice-widget-service/internal/services/chat"
	"github.com/NexaFlowAI/voice-widget-service/internal/webhook"
	"github.com/NexaFlowAI/voice-widget-service/pkg/logger"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HandlerManager manages all handlers and their initialization
type HandlerManager struct {
	config   *config.Config
	flows    *callflow.Manager
	chat     *chat.Service
	webhooks *webhook.Client
}

// NewHandlerManager creates and initializes all handlers
func NewHandlerManager(cfg *config.Config, flows *callflow.Manager, chatSvc *chat.Service, webhooks *webhook.Client) *HandlerManager {
	return &HandlerManager{
		config:   cfg,
		flows:    flows,
		chat:     chatSvc,
		webhooks: webhooks,
	}
}

// SetupAllRoutes sets up all routes with middleware
func (hm *HandlerManager) SetupAllRoutes(router *mux.Router) {
	// Apply global middleware
	router.Use(CORSMiddleware)

	hm.SetupAPIRoutes(router)

	router.HandleFunc("/health", handleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	logger.Base().Info("all application routes registered")
}

// SetupAPIRoutes sets up the widget API routes and middleware
func (hm *HandlerManager) SetupAPIRoutes(router *mux.Router) {
	apiRouter := router.PathPrefix("/api").Subrouter()

	apiRouter.Use(LoggingMiddleware)
	apiRouter.Use(ValidationMiddleware)

	leadHandler := NewLeadHandler(hm.flows, hm.webhooks)
	leadHandler.SetupLeadRoutes(apiRouter)

	callHandler := NewCallHandler(hm.flows)
	callHandler.SetupCallRoutes(apiRouter)

	chatHandler := NewChatHandler(hm.chat)
	chatHandler.SetupChatRoutes(apiRouter)

	contactHandler := NewContactHandler(hm.webhooks)
	contactHandler.SetupContactRoutes(apiRouter)

	// CORS preflight handling for all API routes
	router.PathPrefix("/api/").HandlerFunc(handleCORS).Methods("OPTIONS")

	logger.Base().Info("widget api routes registered")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
