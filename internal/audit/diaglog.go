// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DiagLogger writes JSON-line diagnostic records out of band from the
// SQLite store. Its single job is to keep evidence of audit writes that
// the database could not accept, so a persistence outage never loses the
// record entirely.
type DiagLogger struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
}

// NewDiagLogger opens the diagnostic log at path with rotation. Returns a
// disabled logger (nil-safe) if path is empty.
func NewDiagLogger(path string) *DiagLogger {
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warnf("Failed to create diagnostic log directory: %v", err)
			return nil
		}
	}
	return &DiagLogger{
		writer: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     90, // days
			Compress:   true,
		},
	}
}

// LogWriteFailure records an audit entry that the store failed to persist.
// Safe to call on a nil logger.
func (d *DiagLogger) LogWriteFailure(entry *Entry, cause error) {
	if d == nil {
		return
	}

	record := map[string]any{
		"event":     "audit_write_failure",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"error":     cause.Error(),
		"entry": map[string]any{
			"handler_name":         entry.HandlerName,
			"action":               entry.Action,
			"user_id_hash":         entry.UserIDHash,
			"escalation_triggered": entry.EscalationTriggered,
			"input_data":           entry.InputData,
			"output_data":          entry.OutputData,
		},
	}

	line, err := json.Marshal(record)
	if err != nil {
		log.Errorf("Failed to marshal diagnostic record: %v", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.writer.Write(append(line, '\n')); err != nil {
		log.Errorf("Failed to write diagnostic record: %v", err)
	}
}

// Close closes the underlying rotated file. Safe on nil.
func (d *DiagLogger) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writer.Close()
}
