// Package chat drives the tool-calling conversation loop and the query gate
// guarding the database tool it exposes.
package chat

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/carewellhealth/patient-portal/internal/identity"
	"github.com/carewellhealth/patient-portal/internal/observability/metrics"
	"github.com/carewellhealth/patient-portal/pkg/logging"
)

// ErrModificationNotAllowed is the tool-facing error for forbidden vocabulary.
const ErrModificationNotAllowed = "modification not allowed"

// forbiddenVocabulary rejects data mutation, schema mutation,
// permission/transaction control, and catalog introspection. Matching is an
// uppercase substring scan, so e.g. "address" trips ADD; the LLM recovers by
// rephrasing the query.
var forbiddenVocabulary = []string{
	"INSERT", "UPDATE", "DELETE", "TRUNCATE", "MERGE", "UPSERT",
	"CREATE", "ALTER", "DROP", "RENAME", "ADD", "MODIFY", "COLUMN",
	"GRANT", "REVOKE", "COMMIT", "ROLLBACK", "BEGIN", "START", "TRANSACTION",
	"INFORMATION_SCHEMA", "PG_CATALOG",
}

// ToolResult is the structured outcome returned to the LLM for one
// queryDatabase invocation. Failures are carried in Error, never as a Go
// error: the conversational loop must be able to see the message and retry.
type ToolResult struct {
	Data    []map[string]any
	Message string
	Error   string
}

// MarshalJSON renders the wire shape the tool contract promises:
// {"error": ...} on failure, otherwise {"data": rows} with an optional
// message and data always present (an empty result is "data": []).
func (r ToolResult) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(map[string]string{"error": r.Error})
	}
	data := r.Data
	if data == nil {
		data = []map[string]any{}
	}
	payload := map[string]any{"data": data}
	if r.Message != "" {
		payload["message"] = r.Message
	}
	return json.Marshal(payload)
}

// RowQuerier is the slice of pgxpool.Pool the gate needs.
type RowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// QueryAuditor records gate dispositions for the compliance trail.
type QueryAuditor interface {
	LogQueryGate(ctx context.Context, patientID int, query, outcome string) error
}

// QueryGate is the authorization boundary between the tool-calling LLM and
// the database. It filters vocabulary, not row scope: unless
// enforceTenantScope is set, nothing here prevents a well-formed SELECT from
// reading another patient's rows — that protection rests on the system
// prompt's instruction to the model. See the enforceTenantScope flag for the
// structural alternative.
type QueryGate struct {
	db                 RowQuerier
	enforceTenantScope bool
	audit              QueryAuditor
	metrics            *metrics.GuardMetrics
	logger             *logging.Logger
}

// NewQueryGate creates a gate over the given querier. audit and metrics may
// be nil.
func NewQueryGate(db RowQuerier, enforceTenantScope bool, audit QueryAuditor, m *metrics.GuardMetrics, logger *logging.Logger) *QueryGate {
	if db == nil {
		panic("chat: querier cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &QueryGate{
		db:                 db,
		enforceTenantScope: enforceTenantScope,
		audit:              audit,
		metrics:            m,
		logger:             logger,
	}
}

// Run validates and executes one LLM-proposed query. patient may be nil for
// unauthenticated chat.
func (g *QueryGate) Run(ctx context.Context, patient *identity.Patient, query string) ToolResult {
	upper := strings.ToUpper(query)
	for _, word := range forbiddenVocabulary {
		if strings.Contains(upper, word) {
			g.logger.Info("query gate rejected forbidden vocabulary", "token", word)
			g.record(ctx, patient, query, "rejected_vocabulary")
			return ToolResult{Error: ErrModificationNotAllowed}
		}
	}

	if g.enforceTenantScope {
		if patient == nil {
			g.record(ctx, patient, query, "rejected_scope")
			return ToolResult{Error: "query must be scoped to an authenticated patient"}
		}
		id := strconv.Itoa(patient.ID)
		if !strings.Contains(upper, "PATIENT_ID") || !strings.Contains(upper, id) {
			g.record(ctx, patient, query, "rejected_scope")
			return ToolResult{Error: "query must be scoped to the current patient"}
		}
	}

	rows, err := g.db.Query(ctx, query)
	if err != nil {
		g.logger.Error("query gate execution failed", "error", err)
		g.record(ctx, patient, query, "error")
		return ToolResult{Error: err.Error()}
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			g.record(ctx, patient, query, "error")
			return ToolResult{Error: err.Error()}
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		g.record(ctx, patient, query, "error")
		return ToolResult{Error: err.Error()}
	}

	if len(out) == 0 {
		g.record(ctx, patient, query, "empty")
		return ToolResult{Data: []map[string]any{}, Message: "No results found"}
	}
	g.record(ctx, patient, query, "executed")
	return ToolResult{Data: out}
}

func (g *QueryGate) record(ctx context.Context, patient *identity.Patient, query, outcome string) {
	g.metrics.ObserveQueryGate(outcome)
	if g.audit == nil {
		return
	}
	patientID := 0
	if patient != nil {
		patientID = patient.ID
	}
	if err := g.audit.LogQueryGate(ctx, patientID, query, outcome); err != nil {
		g.logger.Error("failed to audit query gate disposition", "error", err)
	}
}
