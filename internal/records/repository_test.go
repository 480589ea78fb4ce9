package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoForTest(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock), mock
}

func TestGetPatient(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock := newRepoForTest(t)
		dob := time.Date(1992, 3, 15, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT id, first_name, last_name, date_of_birth FROM system_patients").
			WithArgs(5).
			WillReturnRows(pgxmock.NewRows([]string{"id", "first_name", "last_name", "date_of_birth"}).
				AddRow(5, "Jane", "Doe", dob))

		patient, err := repo.GetPatient(context.Background(), 5)
		require.NoError(t, err)
		assert.Equal(t, "Jane", patient.FirstName)
		assert.Equal(t, "1992-03-15", patient.DateOfBirth)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock := newRepoForTest(t)
		mock.ExpectQuery("SELECT id, first_name, last_name, date_of_birth FROM system_patients").
			WithArgs(99).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetPatient(context.Background(), 99)
		assert.ErrorIs(t, err, ErrPatientNotFound)
	})
}

func TestListBills(t *testing.T) {
	repo, mock := newRepoForTest(t)
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, patient_id, provider, purpose, amount, paid, created_at").
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "patient_id", "provider", "purpose", "amount", "paid", "created_at"}).
			AddRow(2, 5, "City Imaging", "MRI scan", 1250.50, false, created).
			AddRow(1, 5, "Dr. Patel", "Annual physical", 180.00, true, created.Add(-24*time.Hour)))

	bills, err := repo.ListBills(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, bills, 2)
	assert.Equal(t, "City Imaging", bills[0].Provider)
	assert.InDelta(t, 1250.50, bills[0].Amount, 0.001)
	assert.False(t, bills[0].Paid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListLabResults(t *testing.T) {
	repo, mock := newRepoForTest(t)
	created := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	pending := (*string)(nil)
	diagnosis := "Within normal range"
	mock.ExpectQuery("SELECT id, patient_id, condition, date, diagnosis, created_at").
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "patient_id", "condition", "date", "diagnosis", "created_at"}).
			AddRow(3, 5, "Cholesterol panel", time.Date(2025, 5, 9, 0, 0, 0, 0, time.UTC), &diagnosis, created).
			AddRow(2, 5, "A1C", time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC), pending, created))

	results, err := repo.ListLabResults(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "2025-05-09", results[0].Date)
	assert.Equal(t, "Within normal range", results[0].Diagnosis)
	// Pending results come back with an empty diagnosis, not an error.
	assert.Empty(t, results[1].Diagnosis)
}

func TestListPrescriptions(t *testing.T) {
	repo, mock := newRepoForTest(t)
	mock.ExpectQuery("SELECT id, patient_id, drug, dosage, date_issued, expiry_date, created_at").
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "patient_id", "drug", "dosage", "date_issued", "expiry_date", "created_at"}).
			AddRow(1, 5, "Atorvastatin", "20mg daily", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)))

	scripts, err := repo.ListPrescriptions(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, scripts, 1)
	assert.Equal(t, "Atorvastatin", scripts[0].Drug)
	assert.Equal(t, "2025-03-01", scripts[0].DateIssued)
	assert.Equal(t, "2026-03-01", scripts[0].ExpiryDate)
}

func TestListBillsQueryError(t *testing.T) {
	repo, mock := newRepoForTest(t)
	mock.ExpectQuery("SELECT id, patient_id, provider, purpose, amount, paid, created_at").
		WithArgs(5).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.ListBills(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query bills")
}
