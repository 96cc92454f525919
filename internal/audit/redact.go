// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// redactedFields is the closed set of PII keys removed from audit input
// data. Matching is case-insensitive on mapping keys, at any nesting depth.
var redactedFields = map[string]bool{
	"name":    true,
	"email":   true,
	"phone":   true,
	"ssn":     true,
	"address": true,
	"dob":     true,
}

// Redact returns a deep copy of data with every value under a PII key
// replaced by the literal "[REDACTED]". Nested maps and lists are traversed
// recursively; the input is never mutated.
func Redact(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for key, value := range data {
		if redactedFields[strings.ToLower(key)] {
			out[key] = "[REDACTED]"
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

func redactValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return Redact(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactValue(item)
		}
		return out
	default:
		return value
	}
}

// HashUserID hashes an opaque user id with SHA-256 and keeps the first 16
// hex characters. Only the hash is ever persisted.
func HashUserID(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])[:16]
}
