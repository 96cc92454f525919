// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package builtin

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/careroute/careroute/internal/handler"
)

//go:embed drugs.yaml
var defaultDrugsYAML []byte

// DrugRecord is one entry in the educational drug table.
type DrugRecord struct {
	Name                 string   `yaml:"name"`
	DrugClass            string   `yaml:"drug_class"`
	Description          string   `yaml:"description"`
	CommonUses           []string `yaml:"common_uses"`
	CommonSideEffects    []string `yaml:"common_side_effects"`
	MajorInteractions    []string `yaml:"major_interactions"`
	ModerateInteractions []string `yaml:"moderate_interactions"`
}

type drugFile struct {
	Version int          `yaml:"version"`
	Drugs   []DrugRecord `yaml:"drugs"`
}

// DrugInfo serves educational medication information and interaction
// checks from an embedded table. It has no prescribing authority; it
// never recommends or doses medications.
type DrugInfo struct {
	handler.Base
	drugs map[string]DrugRecord
}

// NewDrugInfo parses the embedded drug table and returns the handler.
func NewDrugInfo() (*DrugInfo, error) {
	var file drugFile
	if err := yaml.Unmarshal(defaultDrugsYAML, &file); err != nil {
		return nil, fmt.Errorf("failed to parse drug table: %w", err)
	}
	drugs := make(map[string]DrugRecord, len(file.Drugs))
	for _, d := range file.Drugs {
		drugs[strings.ToLower(d.Name)] = d
	}
	return &DrugInfo{drugs: drugs}, nil
}

func (d *DrugInfo) Name() string { return "drug_info" }

func (d *DrugInfo) Description() string {
	return "Medication knowledge: drug interactions and education (NO prescribing authority)"
}

func (d *DrugInfo) Capabilities() []string {
	return []string{
		"drug", "medication", "medicine", "prescription", "interaction",
		"dosage", "side effects", "contraindication",
	}
}

func (d *DrugInfo) ConfidenceThreshold() float64 { return 0.70 }

// Reentrant: the drug table is immutable after construction.
func (d *DrugInfo) Reentrant() bool { return true }

func (d *DrugInfo) Process(ctx context.Context, req *handler.Request) (*handler.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reqCtx := req.EnsureContext()
	switch reqCtx.Task {
	case "check_interactions":
		return d.checkInteractions(reqCtx), nil
	default:
		return d.explain(req, reqCtx), nil
	}
}

func (d *DrugInfo) explain(req *handler.Request, reqCtx *handler.Context) *handler.Reply {
	medication, _ := reqCtx.Extra["medication"].(string)
	if medication == "" {
		medication = d.findMentioned(req.Message)
	}
	if medication == "" {
		return &handler.Reply{
			HandlerName: d.Name(),
			Success:     false,
			Data:        map[string]any{"error": "'medication' required for drug information"},
			Reasoning:   "No medication named in the request",
			Timestamp:   time.Now().UTC(),
		}
	}

	record, found := d.drugs[strings.ToLower(medication)]
	if !found {
		return &handler.Reply{
			HandlerName: d.Name(),
			Success:     true,
			Data: map[string]any{
				"task":      "medication_explanation",
				"drug_name": medication,
				"found":     false,
				"message":   fmt.Sprintf("%s is not in the local knowledge base. Consult a pharmacist for information.", medication),
			},
			Confidence: 0.40,
			Reasoning:  fmt.Sprintf("No local record for %s", medication),
			Timestamp:  time.Now().UTC(),
		}
	}

	return &handler.Reply{
		HandlerName: d.Name(),
		Success:     true,
		Data: map[string]any{
			"task":                "medication_explanation",
			"drug_name":           record.Name,
			"drug_class":          record.DrugClass,
			"description":         record.Description,
			"common_uses":         record.CommonUses,
			"common_side_effects": record.CommonSideEffects,
			"known_interactions":  append(append([]string{}, record.MajorInteractions...), record.ModerateInteractions...),
		},
		Confidence: 0.85,
		Reasoning:  fmt.Sprintf("Medication information provided for %s from the local table.", record.Name),
		Timestamp:  time.Now().UTC(),
	}
}

func (d *DrugInfo) checkInteractions(reqCtx *handler.Context) *handler.Reply {
	medications := stringSlice(reqCtx.Extra["medications"])
	if len(medications) < 2 {
		return &handler.Reply{
			HandlerName: d.Name(),
			Success:     false,
			Data:        map[string]any{"error": "'medications' list with at least two entries required"},
			Reasoning:   "Interaction check needs two or more medications",
			Timestamp:   time.Now().UTC(),
		}
	}

	var interactions []map[string]any
	var redFlags []string
	for i, med1 := range medications {
		for _, med2 := range medications[i+1:] {
			severity := d.interactionSeverity(strings.ToLower(med1), strings.ToLower(med2))
			if severity == "" {
				continue
			}
			interactions = append(interactions, map[string]any{
				"drug1":    med1,
				"drug2":    med2,
				"severity": severity,
			})
			if severity == "major" {
				redFlags = append(redFlags, fmt.Sprintf("⚠️ MAJOR DRUG INTERACTION: %s + %s", med1, med2))
			}
		}
	}

	confidence := 0.90
	if len(medications) > 5 {
		confidence = 0.75
	}

	return &handler.Reply{
		HandlerName: d.Name(),
		Success:     true,
		Data: map[string]any{
			"task":                "drug_interaction_check",
			"medications_checked": medications,
			"interactions":        interactions,
			"known_interactions":  interactionNames(interactions),
		},
		Confidence:         confidence,
		Reasoning:          fmt.Sprintf("Checked %d medications for pairwise interactions.", len(medications)),
		RedFlags:           redFlags,
		RequiresEscalation: len(redFlags) > 0,
		Timestamp:          time.Now().UTC(),
	}
}

func (d *DrugInfo) interactionSeverity(med1, med2 string) string {
	check := func(a, b string) string {
		record, ok := d.drugs[a]
		if !ok {
			return ""
		}
		for _, other := range record.MajorInteractions {
			if strings.Contains(b, other) {
				return "major"
			}
		}
		for _, other := range record.ModerateInteractions {
			if strings.Contains(b, other) {
				return "moderate"
			}
		}
		return ""
	}
	if severity := check(med1, med2); severity != "" {
		return severity
	}
	return check(med2, med1)
}

// findMentioned scans the free-text message for a known drug name.
func (d *DrugInfo) findMentioned(message string) string {
	lower := strings.ToLower(message)
	for name := range d.drugs {
		if strings.Contains(lower, name) {
			return name
		}
	}
	return ""
}

func interactionNames(interactions []map[string]any) []string {
	out := make([]string, 0, len(interactions))
	for _, it := range interactions {
		out = append(out, fmt.Sprintf("%v + %v", it["drug1"], it["drug2"]))
	}
	return out
}

func stringSlice(v any) []string {
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
