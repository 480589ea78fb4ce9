package guard

import (
	"encoding/json"
	"net/http"

	"github.com/carewellhealth/patient-portal/internal/identity"
	"github.com/carewellhealth/patient-portal/pkg/logging"
)

// Handler exposes the client-initiated guard checks over HTTP. The
// orchestrator re-runs the full pipeline server-side; these endpoints exist
// so the frontend can short-circuit before opening a chat stream.
type Handler struct {
	classifier InjectionClassifier
	validator  IntentValidator
	logger     *logging.Logger
}

// NewHandler creates a guard handler.
func NewHandler(classifier InjectionClassifier, validator IntentValidator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{classifier: classifier, validator: validator, logger: logger}
}

type promptGuardRequest struct {
	Input string `json:"input"`
}

type promptGuardResponse struct {
	IsMalicious bool `json:"isMalicious"`
}

// PromptGuard handles POST /api/prompt-guard.
func (h *Handler) PromptGuard(w http.ResponseWriter, r *http.Request) {
	var req promptGuardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Mirror the classifier's fail-open posture: a malformed request is
		// reported benign rather than erroring the chat flow.
		h.writeJSON(w, http.StatusOK, promptGuardResponse{IsMalicious: false})
		return
	}
	h.writeJSON(w, http.StatusOK, promptGuardResponse{
		IsMalicious: h.classifier.IsMalicious(r.Context(), req.Input),
	})
}

type validatePromptRequest struct {
	Prompt   string    `json:"prompt"`
	Messages []Message `json:"messages"`
}

// ValidatePrompt handles POST /api/validate-prompt.
func (h *Handler) ValidatePrompt(w http.ResponseWriter, r *http.Request) {
	patient, ok := identity.PatientFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusOK, ValidationVerdict{
			IsValid:   false,
			Reasoning: "User not authenticated",
		})
		return
	}

	var req validatePromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusOK, ValidationVerdict{
			IsValid:   false,
			Reasoning: ErrorDuringValidation,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, h.validator.Validate(r.Context(), patient, req.Messages, req.Prompt))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
