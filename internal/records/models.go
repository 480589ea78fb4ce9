// Package records exposes the patient's structured medical data: billing,
// lab results, and prescriptions, always scoped to the authenticated patient.
package records

import "time"

// Bill is one row of patient_billing.
type Bill struct {
	ID        int       `json:"id"`
	PatientID int       `json:"patient_id"`
	Provider  string    `json:"provider"`
	Purpose   string    `json:"purpose"`
	Amount    float64   `json:"amount"`
	Paid      bool      `json:"paid"`
	CreatedAt time.Time `json:"created_at"`
}

// LabResult is one row of patient_lab_results. Date is the sample date in
// YYYY-MM-DD form; Diagnosis may be empty while results are pending.
type LabResult struct {
	ID        int       `json:"id"`
	PatientID int       `json:"patient_id"`
	Condition string    `json:"condition"`
	Date      string    `json:"date"`
	Diagnosis string    `json:"diagnosis"`
	CreatedAt time.Time `json:"created_at"`
}

// Prescription is one row of patient_rx.
type Prescription struct {
	ID         int       `json:"id"`
	PatientID  int       `json:"patient_id"`
	Drug       string    `json:"drug"`
	Dosage     string    `json:"dosage"`
	DateIssued string    `json:"date_issued"`
	ExpiryDate string    `json:"expiry_date"`
	CreatedAt  time.Time `json:"created_at"`
}
