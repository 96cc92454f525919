// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careroute/careroute/internal/audit"
	"github.com/careroute/careroute/internal/classifier"
	"github.com/careroute/careroute/internal/handler"
	"github.com/careroute/careroute/internal/orchestrator"
	"github.com/careroute/careroute/internal/safety"
)

type stubHandler struct {
	handler.Base
	name string
}

func (s *stubHandler) Name() string           { return s.name }
func (s *stubHandler) Description() string    { return "stub " + s.name }
func (s *stubHandler) Capabilities() []string { return []string{s.name} }
func (s *stubHandler) Reentrant() bool        { return true }
func (s *stubHandler) Process(ctx context.Context, req *handler.Request) (*handler.Reply, error) {
	return &handler.Reply{
		HandlerName: s.name,
		Success:     true,
		Data:        map[string]any{"result": "ok"},
		Confidence:  0.9,
		Reasoning:   "Processed the request with the stub pipeline.",
		Timestamp:   time.Now().UTC(),
	}, nil
}

type apiFixture struct {
	engine *gin.Engine
	mock   sqlmock.Sqlmock
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cls, err := classifier.New(classifier.Options{})
	require.NoError(t, err)
	wrapper, err := safety.New(safety.Options{})
	require.NoError(t, err)

	registry := handler.NewRegistry()
	registry.Register(&stubHandler{name: "triage"})

	store := audit.NewWithDB(db, nil)
	orch := orchestrator.New(registry, cls, wrapper, store, orchestrator.Options{})

	engine := gin.New()
	NewServer(orch, store).RegisterRoutes(engine)

	return &apiFixture{engine: engine, mock: mock}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestQueryEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := f.do(t, http.MethodPost, "/api/orchestrator/query", gin.H{
		"user_id": "patient-1",
		"message": "I have crushing chest pain",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "triage", body["handler"])
	assert.NotEmpty(t, body["audit_id"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestQueryEndpointRejectsMissingFields(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/orchestrator/query", gin.H{"user_id": "patient-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMultiEndpointRequiresHandlers(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/orchestrator/multi", gin.H{
		"user_id": "patient-1",
		"message": "hello",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMultiEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := f.do(t, http.MethodPost, "/api/orchestrator/multi", gin.H{
		"user_id":  "patient-1",
		"message":  "follow up please",
		"handlers": []string{"triage"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "triage")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAgentsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/orchestrator/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	handlers, ok := body["handlers"].([]any)
	require.True(t, ok)
	require.Len(t, handlers, 1)
	info := handlers[0].(map[string]any)
	assert.Equal(t, "triage", info["name"])
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectQuery("SELECT (.+) FROM audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "timestamp", "handler_name", "confidence_score",
			"explainability_score", "escalation_triggered", "reasoning_summary",
			"reviewed_by_hash",
		}))

	rec := f.do(t, http.MethodGet, "/api/orchestrator/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
}

func TestListLogsValidatesMinConfidence(t *testing.T) {
	f := newAPIFixture(t)

	for _, raw := range []string{"150", "-3", "abc"} {
		rec := f.do(t, http.MethodGet, "/api/audit/logs?min_confidence="+raw, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "min_confidence=%s", raw)
	}
}

func TestListLogsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	now := time.Now().UTC()
	f.mock.ExpectQuery("SELECT (.+) FROM audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "timestamp", "handler_name", "confidence_score",
			"explainability_score", "escalation_triggered", "reasoning_summary",
			"reviewed_by_hash",
		}).AddRow(3, now, "triage", 90, 80, "", "Triage assessment", ""))

	rec := f.do(t, http.MethodGet, "/api/audit/logs?handler=triage", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestFullLogNotFound(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectQuery("SELECT (.+) FROM audit_logs WHERE id").
		WillReturnError(sql.ErrNoRows)

	rec := f.do(t, http.MethodGet, "/api/audit/logs/audit_20260824_00099/full", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviewEndpointRequiresOverrideReason(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/audit/logs/audit_20260824_00001/review", gin.H{
		"clinician_id": "clin-1",
		"override":     true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReviewEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectExec("UPDATE audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := f.do(t, http.MethodPost, "/api/audit/logs/audit_20260824_00001/review", gin.H{
		"clinician_id": "clin-1",
		"notes":        "reviewed, decision stands",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "reviewed", body["status"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestExplainabilityStatsValidatesDays(t *testing.T) {
	f := newAPIFixture(t)

	for _, raw := range []string{"0", "91", "-1"} {
		rec := f.do(t, http.MethodGet, "/api/audit/stats/explainability?days="+raw, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "days=%s", raw)
	}
}

func TestExplainabilityStatsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectQuery("SELECT explainability_score FROM audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"explainability_score"}).
			AddRow(90).AddRow(40))

	rec := f.do(t, http.MethodGet, "/api/audit/stats/explainability?days=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandlerStatsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectQuery("SELECT (.+) FROM audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"total", "escalations", "overrides", "avg"}).
			AddRow(10, 2, 1, 85.0))

	rec := f.do(t, http.MethodGet, "/api/audit/stats/handler/triage", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(10), body["total_queries"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
