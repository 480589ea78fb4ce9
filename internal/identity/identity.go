// Package identity supplies the authenticated patient bound to a request.
package identity

import "context"

// SentinelNotLoggedIn is substituted for identity fields when a request
// carries no session. Unauthenticated chat is allowed but scoped to no
// real patient.
const SentinelNotLoggedIn = "NOT LOGGED IN"

// Patient is the authenticated caller for the duration of one request.
type Patient struct {
	ID          int    `json:"userId"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth"`
}

type ctxKey string

const patientKey ctxKey = "portal.patient"

// WithPatient stores the patient in context.
func WithPatient(ctx context.Context, p *Patient) context.Context {
	return context.WithValue(ctx, patientKey, p)
}

// PatientFromContext extracts the patient if present.
func PatientFromContext(ctx context.Context) (*Patient, bool) {
	val := ctx.Value(patientKey)
	if val == nil {
		return nil, false
	}
	p, ok := val.(*Patient)
	return p, ok && p != nil
}
