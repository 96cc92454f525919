// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8317, cfg.Port)
	assert.Equal(t, "logs", cfg.LogDir)
	assert.Equal(t, "data/audit.db", cfg.AuditStoreDSN)
	assert.Equal(t, "logs/audit_diag.log", cfg.AuditDiagLogPath)
	assert.Equal(t, 30000, cfg.DefaultDeadlineMS)
	assert.Equal(t, "communication", cfg.FallbackHandlerName)
	assert.False(t, cfg.Debug)
}

func TestLoadConfigEmptyPathYieldsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 8317, cfg.Port)
}

func TestLoadConfigParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host: 127.0.0.1
port: 9000
debug: true
logging-to-file: true
log-dir: /var/log/careroute
emergency-patterns-path: data/emergency.yaml
watch-rule-files: true
audit-store-dsn: /srv/audit.db
default-deadline-ms: 5000
fallback-handler-name: triage
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.LoggingToFile)
	assert.Equal(t, "/var/log/careroute", cfg.LogDir)
	assert.Equal(t, "data/emergency.yaml", cfg.EmergencyPatternsPath)
	assert.True(t, cfg.WatchRuleFiles)
	assert.Equal(t, "/srv/audit.db", cfg.AuditStoreDSN)
	assert.Equal(t, 5000, cfg.DefaultDeadlineMS)
	assert.Equal(t, "triage", cfg.FallbackHandlerName)

	// Unset keys still pick up defaults.
	assert.Equal(t, "logs/audit_diag.log", cfg.AuditDiagLogPath)
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [not an int"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
