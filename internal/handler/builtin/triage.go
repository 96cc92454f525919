// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package builtin ships the lightweight specialist handlers registered by
// default: triage, communication, drug_info, and health_support. They are
// conservative rule-based collaborators; model-backed handlers plug in
// through the same contract.
package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/careroute/careroute/internal/handler"
)

// Triage classifies urgency with deterministic rules. It is conservative:
// when in doubt it escalates.
type Triage struct {
	handler.Base
}

// NewTriage returns the rule-based triage handler.
func NewTriage() *Triage { return &Triage{} }

func (t *Triage) Name() string { return "triage" }

func (t *Triage) Description() string {
	return "Emergency triage and urgency classification - identifies emergencies and recommends appropriate care level"
}

func (t *Triage) Capabilities() []string {
	return []string{
		"triage", "emergency", "urgent", "how serious",
		"should i go to er", "ambulance", "urgency", "priority", "severity",
	}
}

func (t *Triage) ConfidenceThreshold() float64 { return 0.60 }

// Reentrant: the triage rules are pure functions over the request.
func (t *Triage) Reentrant() bool { return true }

// Keyword tables for the rule-based assessment. Emergency entries mean
// "call the emergency number now"; urgent entries mean care within hours.
var emergencyKeywords = []string{
	"chest pain", "chest pressure", "crushing chest pain", "heart attack",
	"can't breathe", "cannot breathe", "difficulty breathing", "choking",
	"gasping for air", "blue lips",
	"stroke", "facial drooping", "face drooping", "slurred speech",
	"loss of consciousness", "unconscious", "unresponsive",
	"seizure", "convulsion", "worst headache of life",
	"severe bleeding", "bleeding won't stop", "hemorrhage",
	"throat swelling", "throat closing", "anaphylaxis",
	"severe allergic reaction", "tongue swelling",
	"suicidal", "want to die", "going to kill myself",
	"vomiting blood", "coughing up blood",
	"severe burn", "overdose", "severe poisoning",
}

var urgentKeywords = []string{
	"high fever", "fever over 103", "fever won't go down",
	"severe pain", "pain 8/10", "pain 9/10", "pain 10/10",
	"can't keep fluids down", "no urine",
	"bloody stool", "black stool", "persistent vomiting",
	"severe headache", "stiff neck", "rash spreading rapidly",
	"infected wound", "possible fracture", "may be broken",
	"eye injury", "vision loss sudden", "dental abscess",
}

// vitalLimit holds the critical bounds for one vital sign.
type vitalLimit struct {
	criticalLow  float64
	criticalHigh float64
	label        string
	unit         string
}

var vitalLimits = map[string]vitalLimit{
	"heart_rate":              {40, 140, "heart rate", "bpm"},
	"blood_pressure_systolic": {90, 180, "systolic blood pressure", "mmHg"},
	"temperature":             {35.0, 40.0, "temperature", "°C"},
	"respiratory_rate":        {8, 30, "respiratory rate", "/min"},
	"oxygen_saturation":       {90, 101, "oxygen saturation", "%"},
}

func (t *Triage) Process(ctx context.Context, req *handler.Request) (*handler.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reqCtx := req.EnsureContext()
	message := strings.ToLower(req.Message)
	symptoms := lowercase(reqCtx.Symptoms)

	urgency, reasoning := t.assess(message, symptoms, reqCtx.Vitals)
	redFlags := t.redFlags(message, symptoms, reqCtx.Vitals)
	escalate := urgency == "EMERGENCY" || urgency == "URGENT"

	var suggested []string
	switch urgency {
	case "EMERGENCY":
		// No referrals; the only next step is emergency services.
	case "URGENT":
		suggested = []string{"diagnostic_support", "health_memory"}
	default:
		suggested = []string{"diagnostic_support", "communication"}
	}

	action, timeframe := recommendation(urgency)
	data := map[string]any{
		"urgency_level":       urgency,
		"urgency_description": urgencyDescription(urgency),
		"recommended_action":  action,
		"timeframe":           timeframe,
		"warning_signs": []string{
			"Difficulty breathing or shortness of breath",
			"Chest pain or pressure",
			"Confusion or difficulty staying awake",
			"Severe or persistent vomiting",
		},
	}

	return &handler.Reply{
		HandlerName:        t.Name(),
		Success:            true,
		Data:               data,
		Confidence:         t.confidence(symptoms, reqCtx),
		Reasoning:          fmt.Sprintf("Triage assessment: %s - %s", urgency, reasoning),
		RedFlags:           redFlags,
		RequiresEscalation: escalate,
		SuggestedHandlers:  suggested,
		Timestamp:          time.Now().UTC(),
	}, nil
}

func (t *Triage) assess(message string, symptoms []string, vitals map[string]float64) (string, string) {
	for _, kw := range emergencyKeywords {
		if containsKeyword(message, symptoms, kw) {
			return "EMERGENCY", fmt.Sprintf("Emergency keyword detected: %q", kw)
		}
	}

	for name, value := range vitals {
		limit, ok := vitalLimits[name]
		if !ok {
			continue
		}
		if value <= limit.criticalLow {
			return "EMERGENCY", fmt.Sprintf("Critical %s: %g %s", limit.label, value, limit.unit)
		}
		if value >= limit.criticalHigh {
			return "EMERGENCY", fmt.Sprintf("Critical %s: %g %s", limit.label, value, limit.unit)
		}
	}

	for _, kw := range urgentKeywords {
		if containsKeyword(message, symptoms, kw) {
			return "URGENT", fmt.Sprintf("Urgent keyword detected: %q", kw)
		}
	}

	if len(symptoms) >= 4 {
		return "ROUTINE", fmt.Sprintf("Multiple symptoms (%d) - consider medical evaluation", len(symptoms))
	}

	return "SELF_CARE", "Symptoms appear mild and manageable"
}

func (t *Triage) redFlags(message string, symptoms []string, vitals map[string]float64) []string {
	var flags []string
	for _, kw := range emergencyKeywords {
		if containsKeyword(message, symptoms, kw) {
			flags = append(flags, fmt.Sprintf("🚨 EMERGENCY: %s", kw))
		}
	}

	if spo2, ok := vitals["oxygen_saturation"]; ok && spo2 < 92 {
		flags = append(flags, fmt.Sprintf("🚨 Low oxygen: SpO2 %g%%", spo2))
	}
	if temp, ok := vitals["temperature"]; ok && temp >= 40 {
		flags = append(flags, fmt.Sprintf("🚨 Very high fever: %g°C", temp))
	}
	if hr, ok := vitals["heart_rate"]; ok && hr >= 130 {
		flags = append(flags, fmt.Sprintf("⚠️ Rapid heart rate: %g bpm", hr))
	}

	combined := message + " " + strings.Join(symptoms, " ")
	if strings.Contains(combined, "chest pain") && strings.Contains(combined, "shortness of breath") {
		flags = append(flags, "🚨 EMERGENCY: Chest pain + difficulty breathing")
	}
	return flags
}

// confidence grows with the amount of structured information supplied,
// capped at 0.95.
func (t *Triage) confidence(symptoms []string, reqCtx *handler.Context) float64 {
	confidence := 0.70
	if len(reqCtx.Vitals) > 0 {
		confidence += 0.15
	}
	if len(symptoms) >= 2 {
		confidence += 0.05
	}
	if len(reqCtx.PatientContext) > 0 {
		confidence += 0.05
	}
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}

func recommendation(urgency string) (action, timeframe string) {
	switch urgency {
	case "EMERGENCY":
		return "🚨 Call your local emergency number immediately - do not drive yourself", "NOW - every minute counts"
	case "URGENT":
		return "Seek medical care within 2-4 hours (ER or urgent care)", "Within 2-4 hours"
	case "ROUTINE":
		return "Schedule appointment with primary care provider", "Within 1-3 days"
	default:
		return "Self-care appropriate; monitor symptoms", "Self-monitor; seek care if worsens"
	}
}

func urgencyDescription(urgency string) string {
	switch urgency {
	case "EMERGENCY":
		return "Life-threatening emergency requiring an immediate emergency call"
	case "URGENT":
		return "Urgent medical attention needed within hours"
	case "ROUTINE":
		return "Medical evaluation recommended within days"
	default:
		return "Self-care appropriate with symptom monitoring"
	}
}

func containsKeyword(message string, symptoms []string, keyword string) bool {
	if strings.Contains(message, keyword) {
		return true
	}
	for _, s := range symptoms {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}

func lowercase(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
