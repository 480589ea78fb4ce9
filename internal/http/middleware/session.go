package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/carewellhealth/patient-portal/internal/identity"
)

// WithSession resolves the session cookie and, when valid, places the patient
// on the request context. Requests without a valid session pass through
// untouched: routes like chat accept anonymous callers and bind them to the
// sentinel identity instead.
func WithSession(sessions *identity.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if patient, err := sessions.FromRequest(r); err == nil {
				r = r.WithContext(identity.WithPatient(r.Context(), patient))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession rejects requests that did not resolve to a patient. It must
// run after WithSession.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := identity.PatientFromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
