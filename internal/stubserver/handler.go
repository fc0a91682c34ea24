package stubserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the scripted agent over the chatbot HTTP protocol.
type Handler struct {
	agent  *Agent
	logger *slog.Logger
}

// NewHandler creates a handler around the given agent. logger may be nil.
func NewHandler(agent *Agent, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{agent: agent, logger: logger}
}

// RegisterRoutes mounts the chatbot endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/chatbot/start", h.handleStart)
	r.Post("/api/chatbot/activities", h.handleActivities)
	r.Post("/api/chatbot/send", h.handleSend)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TreatmentGroup string `json:"treatmentGroup"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := h.agent.StartConversation()
	h.logger.Info("conversation started", "conversation_id", id, "treatment_group", req.TreatmentGroup)
	JSON(w, http.StatusOK, map[string]string{"conversationId": id})
}

func (h *Handler) handleActivities(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversationId"`
		Watermark      string `json:"watermark"`
		TreatmentGroup string `json:"treatmentGroup"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ConversationID == "" {
		Error(w, http.StatusBadRequest, "conversationId is required")
		return
	}

	set, err := h.agent.Activities(req.ConversationID, req.Watermark)
	if err != nil {
		Error(w, http.StatusNotFound, err.Error())
		return
	}
	JSON(w, http.StatusOK, set)
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversationId"`
		Text           string `json:"text"`
		TreatmentGroup string `json:"treatmentGroup"`
		ClientMsgID    string `json:"clientSideMsgId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ConversationID == "" || req.ClientMsgID == "" {
		Error(w, http.StatusBadRequest, "conversationId and clientSideMsgId are required")
		return
	}

	resp, err := h.agent.Send(req.ConversationID, req.Text, req.ClientMsgID)
	if err != nil {
		Error(w, http.StatusNotFound, err.Error())
		return
	}
	JSON(w, http.StatusOK, resp)
}
