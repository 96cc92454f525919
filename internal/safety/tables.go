// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package safety

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

//go:embed disclaimers.yaml
var defaultDisclaimersYAML []byte

//go:embed prohibited_phrases.yaml
var defaultPhrasesYAML []byte

// DisclaimerFile is the on-disk shape of the disclaimer table.
type DisclaimerFile struct {
	Version     int               `yaml:"version"`
	Disclaimers map[string]string `yaml:"disclaimers"`
}

// PhraseFile is the on-disk shape of the prohibited phrase list.
type PhraseFile struct {
	Version int      `yaml:"version"`
	Phrases []string `yaml:"phrases"`
}

type tables struct {
	disclaimers map[string]string
	phrases     []string
}

// loadTables reads the disclaimer and phrase files, falling back to the
// embedded defaults when a path is empty. Phrases are lowercased once at
// load; matching is case-insensitive substring search.
func loadTables(disclaimersPath, phrasesPath string) (*tables, error) {
	disclaimerData := defaultDisclaimersYAML
	if disclaimersPath != "" {
		data, err := os.ReadFile(disclaimersPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read disclaimers: %w", err)
		}
		disclaimerData = data
	}

	phraseData := defaultPhrasesYAML
	if phrasesPath != "" {
		data, err := os.ReadFile(phrasesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read prohibited phrases: %w", err)
		}
		phraseData = data
	}

	var disclaimers DisclaimerFile
	if err := yaml.Unmarshal(disclaimerData, &disclaimers); err != nil {
		return nil, fmt.Errorf("failed to parse disclaimers: %w", err)
	}
	if disclaimers.Disclaimers["general"] == "" {
		return nil, fmt.Errorf("disclaimer table is missing the 'general' fallback")
	}

	var phrases PhraseFile
	if err := yaml.Unmarshal(phraseData, &phrases); err != nil {
		return nil, fmt.Errorf("failed to parse prohibited phrases: %w", err)
	}
	if len(phrases.Phrases) == 0 {
		return nil, fmt.Errorf("prohibited phrase list is empty")
	}

	t := &tables{disclaimers: disclaimers.Disclaimers}
	for _, p := range phrases.Phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			t.phrases = append(t.phrases, p)
		}
	}
	return t, nil
}

func (t *tables) disclaimerFor(handlerType string) string {
	if d, ok := t.disclaimers[handlerType]; ok && d != "" {
		return d
	}
	return t.disclaimers["general"]
}
