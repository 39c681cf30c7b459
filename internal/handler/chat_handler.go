package handler

import (
	"encoding/json"
	"net/http"

	"github.com/NexaFlowAI/voice-widget-service/internal/services/chat"
	"github.com/gorilla/mux"
)

// ChatHandler relays widget chat messages
type ChatHandler struct {
	chat *chat.Service
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatSvc *chat.Service) *ChatHandler {
	return &ChatHandler{chat: chatSvc}
}

// SetupChatRoutes registers the chat routes on the API subrouter
func (h *ChatHandler) SetupChatRoutes(router *mux.Router) {
	router.HandleFunc("/chat/message", h.SendMessage).Methods("POST")
}

type chatRequest struct {
	Message string `json:"message"`
}

// SendMessage godoc
// @Summary Send a chat message to the assistant
// @Description Relays the message to the chatbot backend under this visitor's durable session. Throttled visitors get a friendly busy reply.
// @Tags chat
// @Accept json
// @Produce json
// @Param request body chatRequest true "Chat message"
// @Success 200 {object} chat.Reply "Bot reply"
// @Failure 400 {object} map[string]string "Empty message"
// @Failure 502 {object} map[string]string "Chatbot backend unavailable"
// @Router /api/chat/message [post]
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	reply, err := h.chat.Send(r.Context(), visitorID(w, r), req.Message)
	if err != nil {
		writeError(w, http.StatusBadGateway, "The assistant is unavailable right now. Please try again.")
		return
	}

	writeJSON(w, http.StatusOK, reply)
}
