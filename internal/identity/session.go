package identity

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "session"

// ErrInvalidSession is returned for missing, malformed, or expired tokens.
var ErrInvalidSession = errors.New("identity: invalid session")

type sessionClaims struct {
	PatientID   int    `json:"userId"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth"`
	jwt.RegisteredClaims
}

// SessionManager issues and verifies HMAC-signed session tokens.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	secure bool
}

// NewSessionManager creates a session manager. secure controls the cookie
// Secure attribute and should be true outside development.
func NewSessionManager(secret string, ttl time.Duration, secure bool) *SessionManager {
	if len(secret) < 32 {
		panic("identity: session secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SessionManager{secret: []byte(secret), ttl: ttl, secure: secure}
}

// Issue signs a session token for the patient.
func (m *SessionManager) Issue(p *Patient) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := sessionClaims{
		PatientID:   p.ID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		DateOfBirth: p.DateOfBirth,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("identity: failed to sign session: %w", err)
	}
	return token, expiresAt, nil
}

// Verify parses a session token and returns the embedded patient.
func (m *SessionManager) Verify(token string) (*Patient, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}
	return &Patient{
		ID:          claims.PatientID,
		FirstName:   claims.FirstName,
		LastName:    claims.LastName,
		DateOfBirth: claims.DateOfBirth,
	}, nil
}

// SetCookie writes the session cookie on the response.
func (m *SessionManager) SetCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (m *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest resolves the patient from the request's session cookie.
func (m *SessionManager) FromRequest(r *http.Request) (*Patient, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrInvalidSession
	}
	return m.Verify(cookie.Value)
}
