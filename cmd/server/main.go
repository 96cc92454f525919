// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the entry point for the careroute server.
// The server orchestrates clinical decision-support requests through
// deterministic classification, specialist handlers, a safety wrapper,
// explainability generation, and a durable audit trail.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/careroute/careroute/internal/api"
	"github.com/careroute/careroute/internal/audit"
	"github.com/careroute/careroute/internal/buildinfo"
	"github.com/careroute/careroute/internal/classifier"
	"github.com/careroute/careroute/internal/config"
	"github.com/careroute/careroute/internal/handler"
	"github.com/careroute/careroute/internal/handler/builtin"
	"github.com/careroute/careroute/internal/logging"
	"github.com/careroute/careroute/internal/orchestrator"
	"github.com/careroute/careroute/internal/safety"
)

func init() {
	logging.SetupBaseLogger()
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logging.SetDebug(cfg.Debug)
	if err := logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogDir); err != nil {
		return err
	}
	log.Infof("careroute %s starting", buildinfo.String())

	cls, err := classifier.New(classifier.Options{
		EmergencyPatternsPath: cfg.EmergencyPatternsPath,
		HandlerRulesPath:      cfg.HandlerRulesPath,
		FallbackHandler:       cfg.FallbackHandlerName,
	})
	if err != nil {
		return err
	}

	if cfg.WatchRuleFiles {
		stop, err := cls.Watch()
		if err != nil {
			log.Warnf("Rule file watching disabled: %v", err)
		} else if stop != nil {
			defer stop()
		}
	}

	wrapper, err := safety.New(safety.Options{
		DisclaimersPath:       cfg.DisclaimersPath,
		ProhibitedPhrasesPath: cfg.ProhibitedPhrasesPath,
	})
	if err != nil {
		return err
	}

	// Audit store unreachable at startup is the one fatal condition.
	diag := audit.NewDiagLogger(cfg.AuditDiagLogPath)
	defer diag.Close()
	store, err := audit.Open(context.Background(), cfg.AuditStoreDSN, diag)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := handler.NewRegistry()
	registry.Register(builtin.NewTriage())
	registry.Register(builtin.NewCommunication(nil))
	registry.Register(builtin.NewHealthSupport())
	drugInfo, err := builtin.NewDrugInfo()
	if err != nil {
		return err
	}
	registry.Register(drugInfo)

	orch := orchestrator.New(registry, cls, wrapper, store, orchestrator.Options{
		DefaultDeadline: time.Duration(cfg.DefaultDeadlineMS) * time.Millisecond,
	})

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	api.NewServer(orch, store).RegisterRoutes(engine)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{Addr: addr, Handler: engine}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Infof("Received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	log.Info("Server stopped")
	return nil
}
