package records

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/carewellhealth/patient-portal/internal/identity"
	"github.com/carewellhealth/patient-portal/pkg/logging"
)

// Lister is the read surface the HTTP handlers consume.
type Lister interface {
	ListBills(ctx context.Context, patientID int) ([]Bill, error)
	ListLabResults(ctx context.Context, patientID int) ([]LabResult, error)
	ListPrescriptions(ctx context.Context, patientID int) ([]Prescription, error)
}

// Handler serves the patient's own records. The patient ID always comes from
// the session, never from the request, so one patient cannot address
// another's rows.
type Handler struct {
	repo   Lister
	logger *logging.Logger
}

// NewHandler creates a records handler.
func NewHandler(repo Lister, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("records: repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// Billing handles GET /api/billing.
func (h *Handler) Billing(w http.ResponseWriter, r *http.Request) {
	patient, ok := identity.PatientFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	bills, err := h.repo.ListBills(r.Context(), patient.ID)
	if err != nil {
		h.logger.Error("failed to fetch billing data", "error", err)
		h.writeError(w, http.StatusInternalServerError, "An error occurred while fetching billing data")
		return
	}
	h.writeJSON(w, bills)
}

// LabResults handles GET /api/lab-results.
func (h *Handler) LabResults(w http.ResponseWriter, r *http.Request) {
	patient, ok := identity.PatientFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	results, err := h.repo.ListLabResults(r.Context(), patient.ID)
	if err != nil {
		h.logger.Error("failed to fetch lab results", "error", err)
		h.writeError(w, http.StatusInternalServerError, "An error occurred while fetching lab results data")
		return
	}
	h.writeJSON(w, results)
}

// Prescriptions handles GET /api/prescriptions.
func (h *Handler) Prescriptions(w http.ResponseWriter, r *http.Request) {
	patient, ok := identity.PatientFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	scripts, err := h.repo.ListPrescriptions(r.Context(), patient.ID)
	if err != nil {
		h.logger.Error("failed to fetch prescriptions", "error", err)
		h.writeError(w, http.StatusInternalServerError, "An error occurred while fetching prescription data")
		return
	}
	h.writeJSON(w, scripts)
}

func (h *Handler) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
