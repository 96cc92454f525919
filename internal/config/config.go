// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the careroute server.
// It handles loading and parsing the YAML configuration file and provides
// structured access to application settings: network binding, data-file
// paths for the classifier and safety tables, the audit store, and logging.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the network host/interface on which the API server will bind.
	// Default is empty ("") to bind all interfaces. Use "127.0.0.1" for
	// local-only access.
	Host string `yaml:"host"`

	// Port is the network port on which the API server will listen.
	Port int `yaml:"port"`

	// Debug enables or disables debug-level logging.
	Debug bool `yaml:"debug"`

	// LoggingToFile controls whether application logs are written to
	// rotating files under LogDir or to stdout.
	LoggingToFile bool `yaml:"logging-to-file"`

	// LogDir is the directory for rotating log files when LoggingToFile
	// is set. Defaults to "logs".
	LogDir string `yaml:"log-dir"`

	// EmergencyPatternsPath points at the emergency regex data file. Empty
	// means the embedded default table.
	EmergencyPatternsPath string `yaml:"emergency-patterns-path"`

	// HandlerRulesPath points at the handler routing rule data file. Empty
	// means the embedded default table.
	HandlerRulesPath string `yaml:"handler-rules-path"`

	// DisclaimersPath points at the handler_type -> disclaimer data file.
	// Empty means the embedded default table.
	DisclaimersPath string `yaml:"disclaimers-path"`

	// ProhibitedPhrasesPath points at the forbidden-substring data file.
	// Empty means the embedded default list.
	ProhibitedPhrasesPath string `yaml:"prohibited-phrases-path"`

	// WatchRuleFiles enables hot reload of the classifier rule files when
	// they change on disk. Only meaningful when at least one of the rule
	// paths is set.
	WatchRuleFiles bool `yaml:"watch-rule-files"`

	// AuditStoreDSN is the SQLite DSN for the durable audit store.
	// Defaults to "data/audit.db". The server aborts bring-up when the
	// store is unreachable.
	AuditStoreDSN string `yaml:"audit-store-dsn"`

	// AuditDiagLogPath is the out-of-band JSON-line diagnostic log that
	// receives audit entries the store failed to persist. Defaults to
	// "logs/audit_diag.log". Empty disables the channel.
	AuditDiagLogPath string `yaml:"audit-diag-log-path"`

	// DefaultDeadlineMS is the per-request handler deadline in
	// milliseconds, applied when the caller supplies none. Default 30000.
	DefaultDeadlineMS int `yaml:"default-deadline-ms"`

	// FallbackHandlerName is the handler selected when no routing rule
	// matches. Default "communication".
	FallbackHandlerName string `yaml:"fallback-handler-name"`
}

// LoadConfig reads the YAML file at path into a Config and applies
// defaults. A missing file yields the defaults rather than an error so the
// server can start with the embedded data tables.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8317
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.AuditStoreDSN == "" {
		c.AuditStoreDSN = "data/audit.db"
	}
	if c.AuditDiagLogPath == "" {
		c.AuditDiagLogPath = "logs/audit_diag.log"
	}
	if c.DefaultDeadlineMS <= 0 {
		c.DefaultDeadlineMS = 30000
	}
	if c.FallbackHandlerName == "" {
		c.FallbackHandlerName = "communication"
	}
}
