// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package explain turns a raw handler reply into reviewable metadata: a
// prose reasoning summary, ranked decision factors, alternative
// considerations, and a 0-100 explainability score. The generator is a
// total pure function; any reply produces a score in range. The score
// measures reviewability, not correctness.
package explain

import (
	"fmt"
	"math"
	"strings"

	"github.com/careroute/careroute/internal/handler"
)

// Importance weights a decision factor for reviewers.
type Importance string

const (
	ImportanceLow      Importance = "low"
	ImportanceModerate Importance = "moderate"
	ImportanceHigh     Importance = "high"
	ImportanceCritical Importance = "critical"
)

// Factor is one ranked input to a decision.
type Factor struct {
	Factor      string     `json:"factor"`
	Value       string     `json:"value"`
	Importance  Importance `json:"importance"`
	Description string     `json:"description"`
}

// Metadata is the explainability output for one handler reply.
type Metadata struct {
	ReasoningSummary          string   `json:"reasoning_summary"`
	DecisionFactors           []Factor `json:"decision_factors"`
	AlternativeConsiderations []string `json:"alternative_considerations"`
	ExplainabilityScore       int      `json:"explainability_score"`
}

// Generate produces explainability metadata for a reply. Prose and factors
// dispatch on the handler type; unknown types get the generic rendering.
func Generate(reply *handler.Reply, handlerType string) *Metadata {
	factors := decisionFactors(reply, handlerType)
	alternatives := alternatives(reply, handlerType)

	return &Metadata{
		ReasoningSummary:          reasoningSummary(reply, handlerType),
		DecisionFactors:           factors,
		AlternativeConsiderations: alternatives,
		ExplainabilityScore:       score(reply, factors, alternatives),
	}
}

func confidencePercent(reply *handler.Reply) int {
	return int(math.Round(reply.Confidence * 100))
}

func reasoningSummary(reply *handler.Reply, handlerType string) string {
	switch handlerType {
	case "triage":
		return triageSummary(reply)
	case "diagnostic_support":
		return diagnosticSummary(reply)
	case "image_analysis":
		return imageSummary(reply)
	case "drug_info":
		return drugSummary(reply)
	default:
		return genericSummary(reply)
	}
}

func triageSummary(reply *handler.Reply) string {
	urgency, _ := reply.Data["urgency_level"].(string)
	pct := confidencePercent(reply)

	switch urgency {
	case "EMERGENCY":
		flags := "emergency indicators"
		if len(reply.RedFlags) > 0 {
			flags = strings.Join(reply.RedFlags, ", ")
		}
		return fmt.Sprintf(
			"EMERGENCY triage classification triggered by detection of %s. "+
				"These symptoms match patterns associated with life-threatening conditions "+
				"requiring immediate medical evaluation. System confidence: %d%%.",
			flags, pct)
	case "URGENT":
		return fmt.Sprintf(
			"URGENT triage classification based on symptom severity and pattern. "+
				"While not immediately life-threatening, symptoms warrant prompt medical "+
				"evaluation within 24 hours to prevent complications. Confidence: %d%%.", pct)
	default:
		return fmt.Sprintf(
			"ROUTINE triage classification - no immediate red flags detected. "+
				"Symptoms can be evaluated during a standard clinic visit. Patient advised "+
				"to monitor for worsening and seek urgent care if the condition changes. "+
				"Confidence: %d%%.", pct)
	}
}

func diagnosticSummary(reply *handler.Reply) string {
	differential := differentialList(reply)
	if len(differential) == 0 {
		return fmt.Sprintf(
			"Insufficient symptom information to generate a differential diagnosis. "+
				"Confidence: %d%%.", confidencePercent(reply))
	}

	return fmt.Sprintf(
		"Differential diagnosis analysis suggests '%s' as the most likely "+
			"explanation based on symptom pattern matching (confidence: %d%%). "+
			"%d alternative condition(s) considered. Clinical correlation with "+
			"physical exam, labs, and imaging required for definitive diagnosis. "+
			"This is decision support only, not a final diagnosis.",
		differential[0].name, confidencePercent(reply), len(differential)-1)
}

func imageSummary(reply *handler.Reply) string {
	pct := confidencePercent(reply)
	if regions := regionCount(reply); regions > 0 {
		return fmt.Sprintf(
			"AI image analysis identified %d region(s) of interest requiring "+
				"radiologist review. Findings are preliminary and must be confirmed "+
				"by a qualified radiologist. Confidence: %d%%.", regions, pct)
	}
	return fmt.Sprintf(
		"Image analysis completed with confidence %d%%. All AI-generated findings "+
			"require validation by a qualified radiologist. This is a screening tool, "+
			"not a diagnostic interpretation.", pct)
}

func drugSummary(reply *handler.Reply) string {
	drug, _ := reply.Data["drug_name"].(string)
	if drug == "" {
		drug = "medication"
	}
	return fmt.Sprintf(
		"Drug information retrieved for %s from the local medical database. "+
			"Information includes uses, side effects, and known interactions. This is "+
			"educational information only - NOT a prescription or dosage recommendation "+
			"(confidence: %d%%). Always consult a pharmacist or prescribing physician "+
			"for personalized advice.", drug, confidencePercent(reply))
}

func genericSummary(reply *handler.Reply) string {
	reasoning := reply.Reasoning
	if reasoning == "" {
		reasoning = "No detailed reasoning available."
	}
	return fmt.Sprintf("AI handler '%s' processed the request with %d%% confidence. %s",
		reply.HandlerName, confidencePercent(reply), reasoning)
}

func decisionFactors(reply *handler.Reply, handlerType string) []Factor {
	confImportance := ImportanceModerate
	if reply.Confidence >= 0.70 {
		confImportance = ImportanceHigh
	}
	factors := []Factor{{
		Factor:      "AI Confidence Score",
		Value:       fmt.Sprintf("%d%%", confidencePercent(reply)),
		Importance:  confImportance,
		Description: fmt.Sprintf("Model confidence in prediction: %s", reply.ConfidenceLevel()),
	}}

	if len(reply.RedFlags) > 0 {
		factors = append(factors, Factor{
			Factor:      "Red Flags Detected",
			Value:       fmt.Sprintf("%d", len(reply.RedFlags)),
			Importance:  ImportanceCritical,
			Description: fmt.Sprintf("Emergency indicators: %s", strings.Join(firstN(reply.RedFlags, 3), ", ")),
		})
	}

	switch handlerType {
	case "triage":
		urgency, _ := reply.Data["urgency_level"].(string)
		if urgency == "" {
			urgency = "UNKNOWN"
		}
		importance := ImportanceHigh
		if urgency == "EMERGENCY" {
			importance = ImportanceCritical
		}
		factors = append(factors, Factor{
			Factor:      "Urgency Classification",
			Value:       urgency,
			Importance:  importance,
			Description: fmt.Sprintf("Triage level determined: %s", urgency),
		})

	case "diagnostic_support":
		if symptoms := stringList(reply.Data["detected_symptoms"]); len(symptoms) > 0 {
			factors = append(factors, Factor{
				Factor:      "Symptoms Analyzed",
				Value:       fmt.Sprintf("%d", len(symptoms)),
				Importance:  ImportanceHigh,
				Description: fmt.Sprintf("Symptoms: %s", strings.Join(firstN(symptoms, 5), ", ")),
			})
		}

	case "drug_info":
		if interactions := stringList(reply.Data["known_interactions"]); len(interactions) > 0 {
			factors = append(factors, Factor{
				Factor:      "Drug Interactions",
				Value:       fmt.Sprintf("%d", len(interactions)),
				Importance:  ImportanceHigh,
				Description: fmt.Sprintf("Known interactions with: %s", strings.Join(firstN(interactions, 3), ", ")),
			})
		}
	}

	return factors
}

func alternatives(reply *handler.Reply, handlerType string) []string {
	var out []string

	switch handlerType {
	case "diagnostic_support":
		differential := differentialList(reply)
		// The next three ranked conditions after the top one.
		for i := 1; i < len(differential) && i <= 3; i++ {
			alt := differential[i]
			if alt.confidence > 0 {
				out = append(out, fmt.Sprintf("%s (%d%% confidence)", alt.name, int(alt.confidence*100)))
			} else {
				out = append(out, alt.name)
			}
		}

	case "triage":
		urgency, _ := reply.Data["urgency_level"].(string)
		switch urgency {
		case "ROUTINE":
			out = append(out,
				"Urgent care visit if symptoms worsen",
				"Telemedicine consultation if preferred")
		case "URGENT":
			out = append(out, "Emergency department if condition deteriorates")
		}

	case "image_analysis":
		out = append(out,
			"Second opinion from specialist radiologist",
			"Additional imaging modalities if clinically indicated")
	}

	return out
}

// score computes the 0-100 explainability score from the reply and the
// generated factors and alternatives, clamped to range.
func score(reply *handler.Reply, factors []Factor, alts []string) int {
	s := 50

	if len(reply.Reasoning) > 20 {
		s += 20
	}
	if len(factors) >= 2 {
		s += 10
	}
	if len(factors) >= 4 {
		s += 5
	}
	if len(alts) >= 1 {
		s += 10
	}
	if len(alts) >= 3 {
		s += 5
	}
	if reply.Confidence < 0.30 && reply.Reasoning == "" {
		s -= 20
	}
	if reply.Confidence >= 0.80 && reply.Reasoning != "" {
		s += 10
	}

	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

type rankedCondition struct {
	name       string
	confidence float64
}

// differentialList normalizes the diagnostic handler's ranked condition
// list, which may hold plain strings or {condition, confidence} maps.
func differentialList(reply *handler.Reply) []rankedCondition {
	raw, ok := reply.Data["differential_diagnosis"].([]any)
	if !ok {
		return nil
	}
	var out []rankedCondition
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			out = append(out, rankedCondition{name: v})
		case map[string]any:
			rc := rankedCondition{name: "Unknown"}
			if name, ok := v["condition"].(string); ok {
				rc.name = name
			}
			if conf, ok := v["confidence"].(float64); ok {
				rc.confidence = conf
			}
			out = append(out, rc)
		}
	}
	return out
}

func regionCount(reply *handler.Reply) int {
	findings, ok := reply.Data["findings"].(map[string]any)
	if !ok {
		return 0
	}
	regions, ok := findings["regions_of_interest"].([]any)
	if !ok {
		return 0
	}
	return len(regions)
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		var out []string
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func firstN(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[:n]
}
