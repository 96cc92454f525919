// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package audit persists an immutable, PII-redacted record of every
// interaction the orchestrator completes. Entries are write-once; the only
// permitted post-write mutation is appending a clinician review or
// override. User ids are stored only as truncated SHA-256 hashes.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	log "github.com/sirupsen/logrus"

	"github.com/careroute/careroute/internal/explain"
	"github.com/careroute/careroute/internal/handler"
	"github.com/careroute/careroute/internal/safety"
)

// Actions recorded in the audit trail.
const (
	ActionAgentQuery        = "agent_query"
	ActionSafetyViolation   = "safety_violation"
	ActionClinicianOverride = "clinician_override"
)

// ErrNotFound is returned when an audit id does not resolve to an entry.
var ErrNotFound = errors.New("audit entry not found")

// Entry is one persisted audit record.
type Entry struct {
	ID          int64     `json:"-"`
	AuditID     string    `json:"audit_id"`
	Timestamp   time.Time `json:"timestamp"`
	UserIDHash  string    `json:"user_id_hash"`
	HandlerName string    `json:"handler_name"`
	Action      string    `json:"action"`

	InputData  map[string]any `json:"input_data"`
	OutputData map[string]any `json:"output_data"`

	ConfidenceScore     *int `json:"confidence_score"`
	ExplainabilityScore *int `json:"explainability_score"`

	ReasoningSummary string           `json:"reasoning_summary,omitempty"`
	DecisionFactors  []explain.Factor `json:"decision_factors,omitempty"`
	Alternatives     []string         `json:"alternative_considerations,omitempty"`

	EscalationTriggered string         `json:"escalation_triggered,omitempty"`
	SafetyFlags         map[string]any `json:"safety_flags,omitempty"`
	ClinicianOverride   map[string]any `json:"clinician_override,omitempty"`

	ReviewedByHash  string     `json:"reviewed_by_hash,omitempty"`
	ReviewTimestamp *time.Time `json:"review_timestamp,omitempty"`
	ReviewNotes     string     `json:"review_notes,omitempty"`
}

// Summary is the compact shape returned by List.
type Summary struct {
	AuditID             string    `json:"audit_id"`
	Timestamp           time.Time `json:"timestamp"`
	HandlerName         string    `json:"handler_name"`
	ConfidenceScore     *int      `json:"confidence_score"`
	ExplainabilityScore *int      `json:"explainability_score"`
	EscalationTriggered string    `json:"escalation_triggered,omitempty"`
	ReasoningSummary    string    `json:"reasoning_summary,omitempty"`
	Reviewed            bool      `json:"reviewed"`
}

// Filters selects entries for List. Zero values mean "no filter"; bounds
// are clamped to the documented ranges.
type Filters struct {
	Handler         string
	UserHash        string
	MinConfidence   *int // 0-100
	EscalationsOnly bool
	SinceHours      int // 1-168, default 24
	Limit           int // 1-500, default 50
}

// Store is the SQLite-backed audit trail.
type Store struct {
	db   *sql.DB
	diag *DiagLogger
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	user_id_hash TEXT NOT NULL,
	handler_name TEXT NOT NULL,
	action TEXT NOT NULL,
	input_data TEXT,
	output_data TEXT,
	confidence_score INTEGER,
	explainability_score INTEGER,
	reasoning_summary TEXT,
	decision_factors TEXT,
	alternatives TEXT,
	escalation_triggered TEXT,
	safety_flags TEXT,
	clinician_override TEXT,
	reviewed_by_hash TEXT,
	review_timestamp DATETIME,
	review_notes TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_handler ON audit_logs(handler_name);
CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_logs(user_id_hash);
CREATE INDEX IF NOT EXISTS idx_audit_escalation ON audit_logs(escalation_triggered);
`

// Open opens (creating if needed) the audit store at dsn and attaches the
// out-of-band diagnostic logger. An unreachable store is fatal at startup.
func Open(ctx context.Context, dsn string, diag *DiagLogger) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("audit store DSN cannot be empty")
	}

	if dir := filepath.Dir(strings.TrimPrefix(dsn, "file:")); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}

	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}

	log.Infof("Audit store ready (dsn: %s)", dsn)
	return &Store{db: db, diag: diag}, nil
}

// NewWithDB wraps an existing database handle. Intended for tests.
func NewWithDB(db *sql.DB, diag *DiagLogger) *Store {
	return &Store{db: db, diag: diag}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record writes the audit entry for a completed interaction and returns
// its audit id. The request's message, attachments, and context are
// redacted before persisting; the user id is stored only as a hash.
func (s *Store) Record(
	ctx context.Context,
	req *handler.Request,
	reply *handler.Reply,
	wrapped *safety.WrappedResponse,
	meta *explain.Metadata,
	escalationTriggered string,
) (string, error) {
	inputData := Redact(map[string]any{
		"message":     req.Message,
		"attachments": req.Attachments,
		"context":     req.Context.Map(),
	})

	disclaimer := wrapped.Disclaimer
	// Truncate on a rune boundary; disclaimers start with multibyte glyphs.
	if r := []rune(disclaimer); len(r) > 100 {
		disclaimer = string(r[:100])
	}
	outputData := map[string]any{
		"handler":             reply.HandlerName,
		"data":                reply.Data,
		"confidence":          reply.Confidence,
		"reasoning":           reply.Reasoning,
		"red_flags":           reply.RedFlags,
		"requires_escalation": reply.RequiresEscalation,
		"disclaimer_applied":  disclaimer,
	}

	confidence := int(math.Round(reply.Confidence * 100))
	entry := &Entry{
		Timestamp:           time.Now().UTC(),
		UserIDHash:          HashUserID(req.UserID),
		HandlerName:         reply.HandlerName,
		Action:              ActionAgentQuery,
		InputData:           inputData,
		OutputData:          outputData,
		ConfidenceScore:     &confidence,
		EscalationTriggered: escalationTriggered,
	}
	if meta != nil {
		entry.ReasoningSummary = meta.ReasoningSummary
		entry.DecisionFactors = meta.DecisionFactors
		entry.Alternatives = meta.AlternativeConsiderations
		entry.ExplainabilityScore = &meta.ExplainabilityScore
	}
	if wrapped.SafetyCheck != nil {
		entry.SafetyFlags = map[string]any{
			"disclaimer_applied":  wrapped.SafetyCheck.DisclaimerApplied,
			"prohibited_language": wrapped.SafetyCheck.ProhibitedLanguage,
			"emergency_overlay":   wrapped.SafetyCheck.EmergencyOverlay,
			"handler_type":        wrapped.SafetyCheck.HandlerType,
		}
	}

	return s.insert(ctx, entry)
}

// RecordViolation writes a safety-violation entry. The details name the
// violated rule but never quote the blocked output.
func (s *Store) RecordViolation(ctx context.Context, req *handler.Request, violationKind, details string) (string, error) {
	entry := &Entry{
		Timestamp:   time.Now().UTC(),
		UserIDHash:  HashUserID(req.UserID),
		HandlerName: "safety",
		Action:      ActionSafetyViolation,
		InputData:   Redact(map[string]any{"message": req.Message}),
		OutputData: map[string]any{
			"violation_kind": violationKind,
			"details":        details,
			"blocked":        true,
		},
		EscalationTriggered: violationKind,
	}
	return s.insert(ctx, entry)
}

// RecordFailure writes an agent_query entry describing a handler or
// infrastructure failure. The error string goes into output_data.
func (s *Store) RecordFailure(ctx context.Context, req *handler.Request, handlerName, errDetail string) (string, error) {
	entry := &Entry{
		Timestamp:   time.Now().UTC(),
		UserIDHash:  HashUserID(req.UserID),
		HandlerName: handlerName,
		Action:      ActionAgentQuery,
		InputData: Redact(map[string]any{
			"message":     req.Message,
			"attachments": req.Attachments,
			"context":     req.Context.Map(),
		}),
		OutputData: map[string]any{
			"error":   errDetail,
			"success": false,
		},
	}
	return s.insert(ctx, entry)
}

func (s *Store) insert(ctx context.Context, entry *Entry) (string, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			timestamp, user_id_hash, handler_name, action,
			input_data, output_data, confidence_score, explainability_score,
			reasoning_summary, decision_factors, alternatives,
			escalation_triggered, safety_flags, clinician_override,
			reviewed_by_hash, review_timestamp, review_notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL, NULL)`,
		entry.Timestamp,
		entry.UserIDHash,
		entry.HandlerName,
		entry.Action,
		marshalJSON(entry.InputData),
		marshalJSON(entry.OutputData),
		nullableInt(entry.ConfidenceScore),
		nullableInt(entry.ExplainabilityScore),
		nullableString(entry.ReasoningSummary),
		marshalJSON(entry.DecisionFactors),
		marshalJSON(entry.Alternatives),
		nullableString(entry.EscalationTriggered),
		marshalJSON(entry.SafetyFlags),
	)
	if err != nil {
		s.reportWriteFailure(entry, err)
		return "", fmt.Errorf("failed to write audit entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		s.reportWriteFailure(entry, err)
		return "", fmt.Errorf("failed to resolve audit entry id: %w", err)
	}

	auditID := FormatAuditID(entry.Timestamp, id)
	log.WithFields(log.Fields{
		"audit_id": auditID,
		"handler":  entry.HandlerName,
		"action":   entry.Action,
	}).Info("Audit entry recorded")
	return auditID, nil
}

// reportWriteFailure emits the failed entry to the out-of-band diagnostic
// channel so a persistence outage never silently drops the record.
func (s *Store) reportWriteFailure(entry *Entry, cause error) {
	log.WithFields(log.Fields{
		"handler": entry.HandlerName,
		"action":  entry.Action,
		"error":   cause.Error(),
	}).Error("Failed to write audit entry")
	if s.diag != nil {
		s.diag.LogWriteFailure(entry, cause)
	}
}

// FormatAuditID renders the human-readable audit id for a row.
func FormatAuditID(ts time.Time, id int64) string {
	return fmt.Sprintf("audit_%s_%05d", ts.Format("20060102"), id)
}

// ParseAuditID extracts the numeric row id from an audit id string.
func ParseAuditID(auditID string) (int64, error) {
	parts := strings.Split(auditID, "_")
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid audit id %q", auditID)
	}
	id, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid audit id %q: %w", auditID, err)
	}
	return id, nil
}

// Get returns the full entry for an audit id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, auditID string) (*Entry, error) {
	id, err := ParseAuditID(auditID)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, timestamp, user_id_hash, handler_name, action,
		       input_data, output_data, confidence_score, explainability_score,
		       reasoning_summary, decision_factors, alternatives,
		       escalation_triggered, safety_flags, clinician_override,
		       reviewed_by_hash, review_timestamp, review_notes
		FROM audit_logs WHERE id = ?`, id)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audit entry: %w", err)
	}
	return entry, nil
}

// List returns entry summaries matching the filters, newest first.
func (s *Store) List(ctx context.Context, f Filters) ([]*Summary, error) {
	hours := f.SinceHours
	if hours <= 0 {
		hours = 24
	}
	if hours > 168 {
		hours = 168
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	query := `
		SELECT id, timestamp, handler_name, confidence_score,
		       explainability_score, escalation_triggered,
		       reasoning_summary, reviewed_by_hash
		FROM audit_logs
		WHERE timestamp >= ?`
	args := []any{time.Now().UTC().Add(-time.Duration(hours) * time.Hour)}

	if f.Handler != "" {
		query += " AND handler_name = ?"
		args = append(args, f.Handler)
	}
	if f.UserHash != "" {
		query += " AND user_id_hash = ?"
		args = append(args, f.UserHash)
	}
	if f.MinConfidence != nil {
		query += " AND confidence_score >= ?"
		args = append(args, *f.MinConfidence)
	}
	if f.EscalationsOnly {
		query += " AND escalation_triggered IS NOT NULL"
	}

	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var out []*Summary
	for rows.Next() {
		var (
			id                       int64
			ts                       time.Time
			handlerName              string
			confidence, explainScore sql.NullInt64
			escalation, reasoning    sql.NullString
			reviewedBy               sql.NullString
		)
		if err := rows.Scan(&id, &ts, &handlerName, &confidence, &explainScore, &escalation, &reasoning, &reviewedBy); err != nil {
			return nil, fmt.Errorf("failed to scan audit summary: %w", err)
		}
		out = append(out, &Summary{
			AuditID:             FormatAuditID(ts, id),
			Timestamp:           ts,
			HandlerName:         handlerName,
			ConfidenceScore:     intPtr(confidence),
			ExplainabilityScore: intPtr(explainScore),
			EscalationTriggered: escalation.String,
			ReasoningSummary:    reasoning.String,
			Reviewed:            reviewedBy.Valid && reviewedBy.String != "",
		})
	}
	return out, rows.Err()
}

// RecordOverride appends a clinician override to an existing entry. This is
// the only permitted mutation besides review metadata.
func (s *Store) RecordOverride(ctx context.Context, auditID, clinicianID, overrideReason, newDecision string) error {
	id, err := ParseAuditID(auditID)
	if err != nil {
		return err
	}

	override := map[string]any{
		"clinician_id": HashUserID(clinicianID),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"reason":       overrideReason,
		"new_decision": newDecision,
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE audit_logs SET clinician_override = ? WHERE id = ?",
		marshalJSON(override), id)
	if err != nil {
		return fmt.Errorf("failed to record override: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	log.Infof("Clinician override recorded for %s", auditID)
	return nil
}

// MarkReviewed records a clinician review against an entry. An override
// requires a reason; the clinician id is stored only as a hash.
func (s *Store) MarkReviewed(ctx context.Context, auditID, clinicianID, notes string, override bool, overrideReason string) error {
	if override && overrideReason == "" {
		return fmt.Errorf("override_reason is required when override is set")
	}
	id, err := ParseAuditID(auditID)
	if err != nil {
		return err
	}

	reviewedBy := HashUserID(clinicianID)
	now := time.Now().UTC()

	var res sql.Result
	if override {
		overrideJSON := marshalJSON(map[string]any{
			"clinician_id": reviewedBy,
			"timestamp":    now.Format(time.RFC3339),
			"reason":       overrideReason,
		})
		res, err = s.db.ExecContext(ctx, `
			UPDATE audit_logs
			SET reviewed_by_hash = ?, review_timestamp = ?, review_notes = ?, clinician_override = ?
			WHERE id = ?`,
			reviewedBy, now, nullableString(notes), overrideJSON, id)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE audit_logs
			SET reviewed_by_hash = ?, review_timestamp = ?, review_notes = ?
			WHERE id = ?`,
			reviewedBy, now, nullableString(notes), id)
	}
	if err != nil {
		return fmt.Errorf("failed to mark entry reviewed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ExplainabilityStats aggregates explainability scores over the last N
// days (clamped to 1-90, default 7).
func (s *Store) ExplainabilityStats(ctx context.Context, days int) (map[string]any, error) {
	if days <= 0 {
		days = 7
	}
	if days > 90 {
		days = 90
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	rows, err := s.db.QueryContext(ctx, `
		SELECT explainability_score FROM audit_logs
		WHERE timestamp >= ? AND explainability_score IS NOT NULL`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query explainability stats: %w", err)
	}
	defer rows.Close()

	var scores []int
	for rows.Next() {
		var score int
		if err := rows.Scan(&score); err != nil {
			return nil, fmt.Errorf("failed to scan explainability score: %w", err)
		}
		scores = append(scores, score)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(scores) == 0 {
		return map[string]any{
			"period_days": days,
			"total_logs":  0,
		}, nil
	}

	sum, high, moderate, low := 0, 0, 0, 0
	for _, score := range scores {
		sum += score
		switch {
		case score >= 80:
			high++
		case score >= 50:
			moderate++
		default:
			low++
		}
	}
	total := len(scores)
	pct := func(n int) float64 {
		return float64(int(float64(n)/float64(total)*10000+0.5)) / 100
	}

	return map[string]any{
		"period_days":                 days,
		"total_logs":                  total,
		"average_explainability_score": float64(int(float64(sum)/float64(total)*100+0.5)) / 100,
		"distribution": map[string]any{
			"high_explainability":     map[string]any{"count": high, "percentage": pct(high)},
			"moderate_explainability": map[string]any{"count": moderate, "percentage": pct(moderate)},
			"low_explainability":      map[string]any{"count": low, "percentage": pct(low)},
		},
	}, nil
}

// HandlerStats aggregates usage statistics for one handler.
func (s *Store) HandlerStats(ctx context.Context, handlerName string) (map[string]any, error) {
	var total, escalations, overrides int
	var avgConfidence sql.NullFloat64

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(escalation_triggered),
		       COUNT(clinician_override),
		       AVG(confidence_score)
		FROM audit_logs WHERE handler_name = ?`, handlerName).
		Scan(&total, &escalations, &overrides, &avgConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate handler stats: %w", err)
	}

	overrideRate := 0.0
	if total > 0 {
		overrideRate = float64(int(float64(overrides)/float64(total)*10000+0.5)) / 100
	}

	return map[string]any{
		"handler_name":        handlerName,
		"total_queries":       total,
		"escalations":         escalations,
		"clinician_overrides": overrides,
		"average_confidence":  avgConfidence.Float64,
		"override_rate":       overrideRate,
	}, nil
}

func scanEntry(row *sql.Row) (*Entry, error) {
	var (
		entry                     Entry
		inputJSON, outputJSON     sql.NullString
		factorsJSON, altsJSON     sql.NullString
		safetyJSON, overrideJSON  sql.NullString
		confidence, explainScore  sql.NullInt64
		reasoning, escalation     sql.NullString
		reviewedBy, reviewNotes   sql.NullString
		reviewTS                  sql.NullTime
	)

	err := row.Scan(
		&entry.ID, &entry.Timestamp, &entry.UserIDHash, &entry.HandlerName, &entry.Action,
		&inputJSON, &outputJSON, &confidence, &explainScore,
		&reasoning, &factorsJSON, &altsJSON,
		&escalation, &safetyJSON, &overrideJSON,
		&reviewedBy, &reviewTS, &reviewNotes,
	)
	if err != nil {
		return nil, err
	}

	entry.AuditID = FormatAuditID(entry.Timestamp, entry.ID)
	entry.ConfidenceScore = intPtr(confidence)
	entry.ExplainabilityScore = intPtr(explainScore)
	entry.ReasoningSummary = reasoning.String
	entry.EscalationTriggered = escalation.String
	entry.ReviewedByHash = reviewedBy.String
	entry.ReviewNotes = reviewNotes.String
	if reviewTS.Valid {
		ts := reviewTS.Time
		entry.ReviewTimestamp = &ts
	}

	unmarshalJSON(inputJSON, &entry.InputData)
	unmarshalJSON(outputJSON, &entry.OutputData)
	unmarshalJSON(factorsJSON, &entry.DecisionFactors)
	unmarshalJSON(altsJSON, &entry.Alternatives)
	unmarshalJSON(safetyJSON, &entry.SafetyFlags)
	unmarshalJSON(overrideJSON, &entry.ClinicianOverride)

	return &entry, nil
}

func marshalJSON(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Warnf("Failed to marshal audit field: %v", err)
		return nil
	}
	if string(data) == "null" {
		return nil
	}
	return string(data)
}

func unmarshalJSON[T any](src sql.NullString, dst *T) {
	if !src.Valid || src.String == "" {
		return
	}
	if err := json.Unmarshal([]byte(src.String), dst); err != nil {
		log.Warnf("Failed to unmarshal audit field: %v", err)
	}
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
