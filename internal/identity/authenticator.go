package identity

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrBadCredentials is returned when the username or password does not match.
var ErrBadCredentials = errors.New("identity: invalid credentials")

// PatientDirectory looks up patient display attributes by ID.
type PatientDirectory interface {
	GetPatient(ctx context.Context, id int) (*Patient, error)
}

// Authenticator verifies portal credentials sourced from configuration.
// The supplied password is hashed server-side and compared against the
// configured digest in constant time; a caller-supplied hash is never
// accepted in place of the password.
type Authenticator struct {
	username     string
	passwordHash []byte // raw SHA-256 digest
	patientID    int
	directory    PatientDirectory
}

// NewAuthenticator builds an authenticator from a username, hex-encoded
// SHA-256 password digest, and the patient record the account maps to.
func NewAuthenticator(username, passwordHashHex string, patientID int, directory PatientDirectory) (*Authenticator, error) {
	digest, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(passwordHashHex)))
	if err != nil || len(digest) != sha256.Size {
		return nil, errors.New("identity: password hash must be hex-encoded SHA-256")
	}
	if username == "" {
		return nil, errors.New("identity: username required")
	}
	if directory == nil {
		return nil, errors.New("identity: patient directory required")
	}
	return &Authenticator{
		username:     username,
		passwordHash: digest,
		patientID:    patientID,
		directory:    directory,
	}, nil
}

// Authenticate checks the credentials and resolves the patient record.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*Patient, error) {
	supplied := sha256.Sum256([]byte(password))

	// Compare both fields unconditionally to keep timing uniform.
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare(supplied[:], a.passwordHash) == 1
	if !userOK || !passOK {
		return nil, ErrBadCredentials
	}

	patient, err := a.directory.GetPatient(ctx, a.patientID)
	if err != nil {
		return nil, fmt.Errorf("identity: failed to load patient record: %w", err)
	}
	return patient, nil
}
