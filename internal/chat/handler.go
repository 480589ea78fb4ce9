package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/carewellhealth/patient-portal/internal/guard"
	"github.com/carewellhealth/patient-portal/internal/identity"
	"github.com/carewellhealth/patient-portal/pkg/logging"
)

// Handler serves POST /api/chat as a server-sent event stream.
type Handler struct {
	orchestrator *Orchestrator
	logger       *logging.Logger
}

// NewHandler creates a chat handler.
func NewHandler(orchestrator *Orchestrator, logger *logging.Logger) *Handler {
	if orchestrator == nil {
		panic("chat: orchestrator cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{orchestrator: orchestrator, logger: logger}
}

type chatRequest struct {
	Messages  []guard.Message `json:"messages"`
	SessionID string          `json:"sessionId"`
}

type chatChunk struct {
	Content string `json:"content"`
}

// sseStream adapts an http.ResponseWriter into the Streamer the orchestrator
// writes to, flushing each chunk so the client renders incrementally.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseStream) Send(chunk string) error {
	raw, err := json.Marshal(chatChunk{Content: chunk})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", raw); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseStream) done() {
	fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flusher.Flush()
}

// Chat handles POST /api/chat. The caller's session is optional: without one
// the assistant is bound to the sentinel identity and can disclose nothing.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}

	patient, _ := identity.PatientFromContext(r.Context())
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Chat-Session", sessionID)

	stream := &sseStream{w: w, flusher: flusher}
	if err := h.orchestrator.Respond(r.Context(), patient, sessionID, req.Messages, stream); err != nil {
		if errors.Is(err, ErrNoUserMessage) {
			// Headers are already out; surface the problem in-stream.
			_ = stream.Send("Please enter a message.")
		} else {
			h.logger.Error("chat turn failed", "error", err)
			_ = stream.Send("Sorry, something went wrong. Please try again.")
		}
	}
	stream.done()
}
