package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carewellhealth/patient-portal/internal/identity"
)

const dateLayout = "2006-01-02"

// ErrPatientNotFound is returned when the requested patient row is absent.
var ErrPatientNotFound = errors.New("records: patient not found")

// Querier is the slice of pgxpool.Pool the repository needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads patient records with parameterized queries. Unlike the
// chat tool path, nothing here ever executes model-authored SQL.
type Repository struct {
	db Querier
}

// NewRepository creates a repository over the given querier.
func NewRepository(db Querier) *Repository {
	if db == nil {
		panic("records: querier cannot be nil")
	}
	return &Repository{db: db}
}

// GetPatient loads one patient's identity row.
func (r *Repository) GetPatient(ctx context.Context, id int) (*identity.Patient, error) {
	var (
		patient identity.Patient
		dob     time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, first_name, last_name, date_of_birth FROM system_patients WHERE id = $1`,
		id,
	).Scan(&patient.ID, &patient.FirstName, &patient.LastName, &dob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("records: failed to load patient %d: %w", id, err)
	}
	patient.DateOfBirth = dob.Format(dateLayout)
	return &patient, nil
}

// ListBills returns the patient's bills, newest first.
func (r *Repository) ListBills(ctx context.Context, patientID int) ([]Bill, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, patient_id, provider, purpose, amount, paid, created_at
		 FROM patient_billing
		 WHERE patient_id = $1
		 ORDER BY created_at DESC`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("records: failed to query bills: %w", err)
	}
	defer rows.Close()

	bills := make([]Bill, 0)
	for rows.Next() {
		var b Bill
		if err := rows.Scan(&b.ID, &b.PatientID, &b.Provider, &b.Purpose, &b.Amount, &b.Paid, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("records: failed to scan bill: %w", err)
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: failed to read bills: %w", err)
	}
	return bills, nil
}

// ListLabResults returns the patient's lab results, newest sample first.
func (r *Repository) ListLabResults(ctx context.Context, patientID int) ([]LabResult, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, patient_id, condition, date, diagnosis, created_at
		 FROM patient_lab_results
		 WHERE patient_id = $1
		 ORDER BY date DESC`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("records: failed to query lab results: %w", err)
	}
	defer rows.Close()

	results := make([]LabResult, 0)
	for rows.Next() {
		var (
			lr        LabResult
			date      time.Time
			diagnosis *string
		)
		if err := rows.Scan(&lr.ID, &lr.PatientID, &lr.Condition, &date, &diagnosis, &lr.CreatedAt); err != nil {
			return nil, fmt.Errorf("records: failed to scan lab result: %w", err)
		}
		lr.Date = date.Format(dateLayout)
		if diagnosis != nil {
			lr.Diagnosis = *diagnosis
		}
		results = append(results, lr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: failed to read lab results: %w", err)
	}
	return results, nil
}

// ListPrescriptions returns the patient's prescriptions, newest issue first.
func (r *Repository) ListPrescriptions(ctx context.Context, patientID int) ([]Prescription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, patient_id, drug, dosage, date_issued, expiry_date, created_at
		 FROM patient_rx
		 WHERE patient_id = $1
		 ORDER BY date_issued DESC`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("records: failed to query prescriptions: %w", err)
	}
	defer rows.Close()

	scripts := make([]Prescription, 0)
	for rows.Next() {
		var (
			p      Prescription
			issued time.Time
			expiry time.Time
		)
		if err := rows.Scan(&p.ID, &p.PatientID, &p.Drug, &p.Dosage, &issued, &expiry, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("records: failed to scan prescription: %w", err)
		}
		p.DateIssued = issued.Format(dateLayout)
		p.ExpiryDate = expiry.Format(dateLayout)
		scripts = append(scripts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: failed to read prescriptions: %w", err)
	}
	return scripts, nil
}
