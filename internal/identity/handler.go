package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carewellhealth/patient-portal/pkg/logging"
)

// LoginAuditor records authentication attempts for the compliance trail.
type LoginAuditor interface {
	LogLoginAttempt(ctx context.Context, username string, patientID int, success bool) error
}

// Handler wires HTTP requests to session issuance and teardown.
type Handler struct {
	auth     *Authenticator
	sessions *SessionManager
	audit    LoginAuditor
	logger   *logging.Logger
}

// NewHandler creates an identity handler. audit may be nil.
func NewHandler(auth *Authenticator, sessions *SessionManager, audit LoginAuditor, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{auth: auth, sessions: sessions, audit: audit, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Login handles POST /api/auth.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, loginResponse{Message: "Invalid request body"})
		return
	}
	if req.Username == "" || req.Password == "" {
		h.writeJSON(w, http.StatusBadRequest, loginResponse{Message: "Username and password are required"})
		return
	}

	patient, err := h.auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrBadCredentials) {
			h.recordLogin(r.Context(), req.Username, 0, false)
			h.writeJSON(w, http.StatusUnauthorized, loginResponse{Message: "Invalid credentials"})
			return
		}
		h.logger.Error("login failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, loginResponse{Message: "An error occurred during login"})
		return
	}

	token, expiresAt, err := h.sessions.Issue(patient)
	if err != nil {
		h.logger.Error("failed to issue session", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, loginResponse{Message: "An error occurred during login"})
		return
	}
	h.sessions.SetCookie(w, token, expiresAt)
	h.recordLogin(r.Context(), req.Username, patient.ID, true)
	h.writeJSON(w, http.StatusOK, loginResponse{Success: true})
}

// Logout handles POST /api/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearCookie(w)
	h.writeJSON(w, http.StatusOK, loginResponse{Success: true})
}

// CurrentUser handles GET /api/user, echoing the session's patient.
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	patient, ok := PatientFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	h.writeJSON(w, http.StatusOK, patient)
}

func (h *Handler) recordLogin(ctx context.Context, username string, patientID int, success bool) {
	if h.audit == nil {
		return
	}
	if err := h.audit.LogLoginAttempt(ctx, username, patientID, success); err != nil {
		h.logger.Error("failed to audit login attempt", "error", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
