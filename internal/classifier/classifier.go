// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package classifier maps a user query to a primary handler and urgency
// level using deterministic, reviewable keyword rules. The rule tables are
// data files, not code; they can be replaced without a rebuild and reload
// on change.
package classifier

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/careroute/careroute/internal/handler"
)

// Classification is the routing decision for one request.
type Classification struct {
	PrimaryHandler    string               `json:"primary_handler"`
	SecondaryHandlers []string             `json:"secondary_handlers"`
	Urgency           handler.UrgencyLevel `json:"urgency"`
	Confidence        float64              `json:"confidence"`
	Reasoning         string               `json:"reasoning"`
}

// Map renders the classification for response envelopes and audit records.
func (c *Classification) Map() map[string]any {
	secondary := c.SecondaryHandlers
	if secondary == nil {
		secondary = []string{}
	}
	return map[string]any{
		"primary_handler":    c.PrimaryHandler,
		"secondary_handlers": secondary,
		"urgency":            string(c.Urgency),
		"confidence":         c.Confidence,
		"reasoning":          c.Reasoning,
	}
}

// Options configures a Classifier.
type Options struct {
	// EmergencyPatternsPath overrides the embedded emergency pattern list.
	EmergencyPatternsPath string

	// HandlerRulesPath overrides the embedded handler rule table.
	HandlerRulesPath string

	// FallbackHandler is selected when no rule matches. Defaults to
	// "communication".
	FallbackHandler string
}

// Classifier scores queries against the rule tables. Classification is a
// pure function of the message and the current table snapshot.
type Classifier struct {
	opts Options

	mu    sync.RWMutex
	table *ruleTable
}

// New loads the rule tables and returns a ready classifier.
func New(opts Options) (*Classifier, error) {
	if opts.FallbackHandler == "" {
		opts.FallbackHandler = "communication"
	}

	table, err := loadRuleTable(opts.EmergencyPatternsPath, opts.HandlerRulesPath)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	return &Classifier{opts: opts, table: table}, nil
}

// Reload re-reads the rule files and swaps the table atomically. A parse
// failure leaves the previous table in place.
func (c *Classifier) Reload() error {
	table, err := loadRuleTable(c.opts.EmergencyPatternsPath, c.opts.HandlerRulesPath)
	if err != nil {
		return fmt.Errorf("classifier reload: %w", err)
	}

	c.mu.Lock()
	c.table = table
	c.mu.Unlock()
	return nil
}

// EmergencyPatterns exposes the active emergency pattern sources for review
// surfaces. The returned slice is a copy.
func (c *Classifier) EmergencyPatterns() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.table.emergencySources...)
}

// RuleVersion returns the version stamp of the active handler rule table.
func (c *Classifier) RuleVersion() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table.version
}

// Classify determines which handler should own the request.
//
// The emergency gate runs first: any emergency pattern match routes to
// triage with emergency urgency and no other handler may be primary.
// Otherwise each handler in the rule table is scored by the fraction of its
// patterns that match, boosted per match, and the best scorer wins. Ties
// resolve to the earlier table entry.
func (c *Classifier) Classify(req *handler.Request) *Classification {
	message := strings.ToLower(req.Message)

	c.mu.RLock()
	table := c.table
	c.mu.RUnlock()

	// Emergency gate.
	emergencyMatches := 0
	for _, re := range table.emergency {
		if re.MatchString(message) {
			emergencyMatches++
		}
	}
	if emergencyMatches > 0 {
		confidence := 0.70 + float64(emergencyMatches)*0.15
		if confidence > 0.95 {
			confidence = 0.95
		}
		return &Classification{
			PrimaryHandler:    "triage",
			SecondaryHandlers: []string{},
			Urgency:           handler.UrgencyEmergency,
			Confidence:        confidence,
			Reasoning:         "Emergency keywords detected. Immediate triage required.",
		}
	}

	// Score every handler with a rule entry.
	type scored struct {
		name  string
		score float64
		order int
	}
	var scores []scored
	for i, rule := range table.rules {
		matches := 0
		for _, re := range rule.patterns {
			if re.MatchString(message) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		score := float64(matches)/float64(len(rule.patterns)) + float64(matches)*0.10
		if score > 0.95 {
			score = 0.95
		}
		scores = append(scores, scored{name: rule.name, score: score, order: i})
	}

	if len(scores) == 0 {
		return &Classification{
			PrimaryHandler:    c.opts.FallbackHandler,
			SecondaryHandlers: []string{},
			Urgency:           handler.UrgencyRoutine,
			Confidence:        0.30,
			Reasoning:         "No specific handler matched. Defaulting to general communication.",
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].order < scores[j].order
	})

	primary := scores[0]
	secondary := []string{}
	for _, s := range scores[1:] {
		if s.score > 0.30 && len(secondary) < 2 {
			secondary = append(secondary, s.name)
		}
	}

	urgency := handler.UrgencyRoutine
	if primary.name == "triage" && primary.score > 0.60 {
		urgency = handler.UrgencyUrgent
	} else if strings.Contains(message, "emergency") || strings.Contains(message, "urgent") {
		urgency = handler.UrgencyUrgent
	}

	return &Classification{
		PrimaryHandler:    primary.name,
		SecondaryHandlers: secondary,
		Urgency:           urgency,
		Confidence:        primary.score,
		Reasoning:         fmt.Sprintf("Matched handler '%s' based on keyword patterns.", primary.name),
	}
}

// ClassifyBatch classifies several requests in order.
func (c *Classifier) ClassifyBatch(reqs []*handler.Request) []*Classification {
	out := make([]*Classification, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, c.Classify(req))
	}
	return out
}
