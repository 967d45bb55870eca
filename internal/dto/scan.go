package dto

import (
	"encoding/json"
	"strings"
)

// ScanPayload is the canonical form of a QR or manual check-in/out payload.
// Clients have produced several historical field spellings; everything past
// the parser only ever sees these names.
type ScanPayload struct {
	Username  string `json:"username"`
	ExamCode  string `json:"exam_code"`
	TagNumber string `json:"tag_number"`
	TestMode  bool   `json:"test_mode"`
	Position  int    `json:"position"`
}

// Accepted aliases per logical field, in resolution order. The first
// non-empty value wins.
var (
	identityAliases = []string{"matricNumber", "username", "matric_no", "studentId", "student_id", "id"}
	examAliases     = []string{"exam_code", "exam", "examCode", "course_code"}
	tagAliases      = []string{"tag_number", "tagNumber"}
)

// ParseScanPayload resolves a raw request body into a canonical ScanPayload.
// JSON objects are matched against the alias tables; anything that is not a
// JSON object is treated as a bare identifier (matric number) string.
func ParseScanPayload(raw []byte) ScanPayload {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return ScanPayload{}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		// Plain-text fallback: a bare identifier, possibly quoted.
		var quoted string
		if err := json.Unmarshal([]byte(trimmed), &quoted); err == nil {
			return ScanPayload{Username: strings.TrimSpace(quoted)}
		}
		return ScanPayload{Username: trimmed}
	}

	payload := ScanPayload{
		Username:  firstString(fields, identityAliases),
		ExamCode:  firstString(fields, examAliases),
		TagNumber: firstString(fields, tagAliases),
	}

	if v, ok := fields["test_mode"]; ok {
		_ = json.Unmarshal(v, &payload.TestMode)
	}
	if v, ok := fields["position"]; ok {
		// Position arrives as either a number or a numeric string.
		if err := json.Unmarshal(v, &payload.Position); err != nil {
			var s string
			if json.Unmarshal(v, &s) == nil {
				payload.Position = atoiSafe(s)
			}
		}
	}

	return payload
}

func firstString(fields map[string]json.RawMessage, aliases []string) string {
	for _, key := range aliases {
		v, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		// Numeric identifiers are serialized unquoted by some clients.
		var n json.Number
		if err := json.Unmarshal(v, &n); err == nil && n.String() != "" {
			return n.String()
		}
	}
	return ""
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range strings.TrimSpace(s) {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
