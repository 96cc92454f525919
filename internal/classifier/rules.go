// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package classifier

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"github.com/goccy/go-yaml"
)

//go:embed emergency_patterns.yaml
var defaultEmergencyYAML []byte

//go:embed handler_rules.yaml
var defaultHandlerRulesYAML []byte

// EmergencyRuleFile is the on-disk shape of the emergency pattern list.
// The list is closed and versioned; reviewers audit it as data.
type EmergencyRuleFile struct {
	Version  int      `yaml:"version"`
	Patterns []string `yaml:"patterns"`
}

// HandlerRule maps one handler name to its keyword patterns. Rules keep
// file order; scoring ties are broken by that order.
type HandlerRule struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

// HandlerRuleFile is the on-disk shape of the handler rule table.
type HandlerRuleFile struct {
	Version  int           `yaml:"version"`
	Handlers []HandlerRule `yaml:"handlers"`
}

// compiledRule is a handler rule with its patterns compiled.
type compiledRule struct {
	name     string
	patterns []*regexp.Regexp
}

// ruleTable is one immutable snapshot of the compiled rule data. Reloads
// swap the whole snapshot so in-flight classifications stay consistent.
type ruleTable struct {
	version          int
	emergency        []*regexp.Regexp
	emergencySources []string
	rules            []compiledRule
}

func compileTables(emergency EmergencyRuleFile, rules HandlerRuleFile) (*ruleTable, error) {
	t := &ruleTable{
		version:          rules.Version,
		emergencySources: append([]string(nil), emergency.Patterns...),
	}

	for _, src := range emergency.Patterns {
		re, err := regexp.Compile("(?i)" + src)
		if err != nil {
			return nil, fmt.Errorf("invalid emergency pattern %q: %w", src, err)
		}
		t.emergency = append(t.emergency, re)
	}

	for _, rule := range rules.Handlers {
		if rule.Name == "" {
			return nil, fmt.Errorf("handler rule with empty name")
		}
		cr := compiledRule{name: rule.Name}
		for _, src := range rule.Patterns {
			re, err := regexp.Compile("(?i)" + src)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q for handler %s: %w", src, rule.Name, err)
			}
			cr.patterns = append(cr.patterns, re)
		}
		if len(cr.patterns) == 0 {
			return nil, fmt.Errorf("handler rule %s has no patterns", rule.Name)
		}
		t.rules = append(t.rules, cr)
	}

	return t, nil
}

// loadRuleTable reads the emergency and handler rule files. Empty paths fall
// back to the embedded defaults.
func loadRuleTable(emergencyPath, rulesPath string) (*ruleTable, error) {
	emergencyData := defaultEmergencyYAML
	if emergencyPath != "" {
		data, err := os.ReadFile(emergencyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read emergency patterns: %w", err)
		}
		emergencyData = data
	}

	rulesData := defaultHandlerRulesYAML
	if rulesPath != "" {
		data, err := os.ReadFile(rulesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read handler rules: %w", err)
		}
		rulesData = data
	}

	var emergency EmergencyRuleFile
	if err := yaml.Unmarshal(emergencyData, &emergency); err != nil {
		return nil, fmt.Errorf("failed to parse emergency patterns: %w", err)
	}
	if len(emergency.Patterns) == 0 {
		return nil, fmt.Errorf("emergency pattern list is empty")
	}

	var rules HandlerRuleFile
	if err := yaml.Unmarshal(rulesData, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse handler rules: %w", err)
	}
	if len(rules.Handlers) == 0 {
		return nil, fmt.Errorf("handler rule table is empty")
	}

	return compileTables(emergency, rules)
}
