// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the orchestrator and audit surfaces over HTTP.
// Transport is glue only; all semantics live in the core packages.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/careroute/careroute/internal/audit"
	"github.com/careroute/careroute/internal/buildinfo"
	"github.com/careroute/careroute/internal/handler"
	"github.com/careroute/careroute/internal/orchestrator"
)

// Server binds the HTTP routes to the pipeline components.
type Server struct {
	orch  *orchestrator.Orchestrator
	store *audit.Store
}

// NewServer creates the API server.
func NewServer(orch *orchestrator.Orchestrator, store *audit.Store) *Server {
	return &Server{orch: orch, store: store}
}

// RegisterRoutes attaches all endpoints to the gin engine.
func (s *Server) RegisterRoutes(engine *gin.Engine) {
	orch := engine.Group("/api/orchestrator")
	{
		orch.POST("/query", s.handleQuery)
		orch.POST("/multi", s.handleMulti)
		orch.GET("/agents", s.handleAgents)
		orch.GET("/health", s.handleHealth)
	}

	auditGroup := engine.Group("/api/audit")
	{
		auditGroup.GET("/logs", s.handleListLogs)
		auditGroup.GET("/logs/:id/full", s.handleFullLog)
		auditGroup.GET("/logs/:id/summary", s.handleLogSummary)
		auditGroup.POST("/logs/:id/review", s.handleReview)
		auditGroup.GET("/stats/explainability", s.handleExplainabilityStats)
		auditGroup.GET("/stats/handler/:name", s.handleHandlerStats)
	}
}

type queryRequest struct {
	UserID      string           `json:"user_id" binding:"required"`
	Message     string           `json:"message" binding:"required"`
	SessionID   string           `json:"session_id"`
	Attachments []string         `json:"attachments"`
	Context     *handler.Context `json:"context"`
}

func (q *queryRequest) toRequest() *handler.Request {
	return &handler.Request{
		UserID:      q.UserID,
		Message:     q.Message,
		SessionID:   q.SessionID,
		Attachments: q.Attachments,
		Context:     q.Context,
	}
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	resp := s.orch.Process(c.Request.Context(), req.toRequest())
	c.JSON(http.StatusOK, resp)
}

type multiRequest struct {
	queryRequest
	Handlers []string `json:"handlers" binding:"required,min=1"`
}

func (s *Server) handleMulti(c *gin.Context) {
	var req multiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	resp := s.orch.ProcessMulti(c.Request.Context(), req.toRequest(), req.Handlers)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"handlers": s.orch.Registry().InfoAll()})
}

func (s *Server) handleHealth(c *gin.Context) {
	health := s.orch.HealthCheck(c.Request.Context())
	health["version"] = buildinfo.Version
	status := http.StatusOK
	if health["status"] != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

func (s *Server) handleListLogs(c *gin.Context) {
	filters := audit.Filters{
		Handler:         c.Query("handler"),
		UserHash:        c.Query("user_hash"),
		EscalationsOnly: c.Query("escalations_only") == "true",
		SinceHours:      intQuery(c, "since_hours", 0),
		Limit:           intQuery(c, "limit", 0),
	}
	if raw := c.Query("min_confidence"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 && v <= 100 {
			filters.MinConfidence = &v
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_confidence must be an integer in [0,100]"})
			return
		}
	}

	entries, err := s.store.List(c.Request.Context(), filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit entries"})
		return
	}
	if entries == nil {
		entries = []*audit.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries, "count": len(entries)})
}

func (s *Server) handleFullLog(c *gin.Context) {
	entry, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.auditError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleLogSummary(c *gin.Context) {
	entry, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.auditError(c, err)
		return
	}

	requiresReview := entry.EscalationTriggered != "" && entry.ReviewedByHash == ""
	c.JSON(http.StatusOK, gin.H{
		"summary_text":         audit.FormatSummary(entry),
		"handler_name":         entry.HandlerName,
		"timestamp":            entry.Timestamp,
		"requires_review":      requiresReview,
		"explainability_score": entry.ExplainabilityScore,
	})
}

type reviewRequest struct {
	ClinicianID    string `json:"clinician_id" binding:"required"`
	Notes          string `json:"notes"`
	Override       bool   `json:"override"`
	OverrideReason string `json:"override_reason"`
}

func (s *Server) handleReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if req.Override && req.OverrideReason == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "override_reason is required when override is set"})
		return
	}

	err := s.store.MarkReviewed(c.Request.Context(), c.Param("id"), req.ClinicianID, req.Notes, req.Override, req.OverrideReason)
	if err != nil {
		s.auditError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reviewed", "audit_id": c.Param("id")})
}

func (s *Server) handleExplainabilityStats(c *gin.Context) {
	days := intQuery(c, "days", 7)
	if days < 1 || days > 90 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be in [1,90]"})
		return
	}

	stats, err := s.store.ExplainabilityStats(c.Request.Context(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate explainability stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleHandlerStats(c *gin.Context) {
	stats, err := s.store.HandlerStats(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate handler stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) auditError(c *gin.Context, err error) {
	if errors.Is(err, audit.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit entry not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
