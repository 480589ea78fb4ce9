package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carewellhealth/patient-portal/internal/identity"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func sessionRequest(t *testing.T, sessions *identity.SessionManager, patient *identity.Patient) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	if patient != nil {
		token, expiresAt, err := sessions.Issue(patient)
		require.NoError(t, err)
		rec := httptest.NewRecorder()
		sessions.SetCookie(rec, token, expiresAt)
		req.Header.Set("Cookie", rec.Header().Get("Set-Cookie"))
	}
	return req
}

func TestWithSessionPopulatesContext(t *testing.T) {
	sessions := identity.NewSessionManager(testSecret, time.Hour, false)
	patient := &identity.Patient{ID: 5, FirstName: "Jane", LastName: "Doe", DateOfBirth: "1992-03-15"}

	var seen *identity.Patient
	handler := WithSession(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = identity.PatientFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), sessionRequest(t, sessions, patient))

	require.NotNil(t, seen)
	assert.Equal(t, 5, seen.ID)
	assert.Equal(t, "Jane", seen.FirstName)
}

func TestWithSessionPassesThroughAnonymous(t *testing.T) {
	sessions := identity.NewSessionManager(testSecret, time.Hour, false)

	called := false
	handler := WithSession(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, ok := identity.PatientFromContext(r.Context())
		assert.False(t, ok)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), sessionRequest(t, sessions, nil))
	assert.True(t, called)
}

func TestWithSessionIgnoresTamperedCookie(t *testing.T) {
	sessions := identity.NewSessionManager(testSecret, time.Hour, false)

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.AddCookie(&http.Cookie{Name: identity.SessionCookieName, Value: "not-a-token"})

	handler := WithSession(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := identity.PatientFromContext(r.Context())
		assert.False(t, ok)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestRequireSession(t *testing.T) {
	sessions := identity.NewSessionManager(testSecret, time.Hour, false)
	protected := WithSession(sessions)(RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	t.Run("rejects anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, sessionRequest(t, sessions, nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
	})

	t.Run("admits authenticated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, sessionRequest(t, sessions, &identity.Patient{ID: 5}))

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
