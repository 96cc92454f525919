// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package audit

import (
	"fmt"
	"strings"
)

// FormatSummary renders an entry as the multi-line plain text block shown
// to clinicians during review.
func FormatSummary(entry *Entry) string {
	var sb strings.Builder

	sb.WriteString("=== AI DECISION AUDIT SUMMARY ===\n")
	sb.WriteString(fmt.Sprintf("Audit ID: %s\n", entry.AuditID))
	sb.WriteString(fmt.Sprintf("Timestamp: %s\n", entry.Timestamp.Format("2006-01-02 15:04:05 UTC")))
	sb.WriteString(fmt.Sprintf("Handler: %s\n", entry.HandlerName))
	sb.WriteString(fmt.Sprintf("Action: %s\n", entry.Action))

	if msg, ok := entry.InputData["message"].(string); ok && msg != "" {
		excerpt := msg
		if len(excerpt) > 120 {
			excerpt = excerpt[:120] + "..."
		}
		sb.WriteString(fmt.Sprintf("\nQuery: %s\n", excerpt))
	}

	if entry.ConfidenceScore != nil {
		sb.WriteString(fmt.Sprintf("\nAI Confidence: %d%%\n", *entry.ConfidenceScore))
	}

	if entry.ReasoningSummary != "" {
		sb.WriteString(fmt.Sprintf("\nReasoning:\n%s\n", entry.ReasoningSummary))
	}

	if len(entry.DecisionFactors) > 0 {
		sb.WriteString("\nKey Decision Factors:\n")
		for _, f := range entry.DecisionFactors {
			sb.WriteString(fmt.Sprintf("  [%s] %s: %s\n",
				strings.ToUpper(string(f.Importance)), f.Factor, f.Value))
			if f.Description != "" {
				sb.WriteString(fmt.Sprintf("      %s\n", f.Description))
			}
		}
	}

	if len(entry.Alternatives) > 0 {
		sb.WriteString("\nAlternative Considerations:\n")
		for _, alt := range entry.Alternatives {
			sb.WriteString(fmt.Sprintf("  - %s\n", alt))
		}
	}

	if entry.EscalationTriggered != "" {
		sb.WriteString(fmt.Sprintf("\n⚠️  ESCALATION TRIGGERED: %s\n", entry.EscalationTriggered))
	}

	if len(entry.ClinicianOverride) > 0 {
		sb.WriteString("\n📝 CLINICIAN OVERRIDE RECORDED\n")
		if reason, ok := entry.ClinicianOverride["reason"].(string); ok && reason != "" {
			sb.WriteString(fmt.Sprintf("   Reason: %s\n", reason))
		}
		if decision, ok := entry.ClinicianOverride["new_decision"].(string); ok && decision != "" {
			sb.WriteString(fmt.Sprintf("   New Decision: %s\n", decision))
		}
	}

	if entry.ReviewedByHash != "" {
		sb.WriteString(fmt.Sprintf("\nReviewed by: %s", entry.ReviewedByHash))
		if entry.ReviewTimestamp != nil {
			sb.WriteString(fmt.Sprintf(" at %s", entry.ReviewTimestamp.Format("2006-01-02 15:04:05 UTC")))
		}
		sb.WriteString("\n")
		if entry.ReviewNotes != "" {
			sb.WriteString(fmt.Sprintf("Notes: %s\n", entry.ReviewNotes))
		}
	}

	if entry.ExplainabilityScore != nil {
		sb.WriteString(fmt.Sprintf("\nExplainability Score: %d/100\n", *entry.ExplainabilityScore))
	}

	sb.WriteString("=================================")
	return sb.String()
}
