package parser

import (
	"encoding/json"
	"strings"

	kakuninErrors "github.com/harunnryd/kakunin/internal/errors"
)

// payload is the wire shape produced by the collaborator. Both "questions" and
// "clarification_questions" are accepted; questions may be plain strings or
// objects carrying a "question" field.
type payload struct {
	Error                  json.RawMessage   `json:"error"`
	Summary                string            `json:"summary"`
	ProjectType            string            `json:"project_type"`
	Features               []string          `json:"features"`
	Constraints            []string          `json:"constraints"`
	SuggestedTechStack     *TechStack        `json:"suggested_tech_stack"`
	Questions              []json.RawMessage `json:"questions"`
	ClarificationQuestions []json.RawMessage `json:"clarification_questions"`
}

// DecodeResult extracts the parse result from raw collaborator output. Markdown
// fences and surrounding chatter are tolerated. An "error" field in the reply,
// or output with no JSON object at all, yields ErrUpstreamParse.
func DecodeResult(raw string) (*Result, error) {
	normalized := cleanModelJSON(raw)
	if normalized == "" {
		return nil, kakuninErrors.UpstreamParse("parser returned empty output")
	}

	var p payload
	if err := json.Unmarshal([]byte(normalized), &p); err != nil {
		extracted := extractFirstBalancedJSON(normalized, '{', '}')
		if extracted == "" {
			return nil, kakuninErrors.WrapWithCategory(err, "failed to parse JSON response", kakuninErrors.ErrUpstreamParse)
		}
		p = payload{}
		if err := json.Unmarshal([]byte(extracted), &p); err != nil {
			return nil, kakuninErrors.WrapWithCategory(err, "failed to parse JSON response", kakuninErrors.ErrUpstreamParse)
		}
	}

	if msg := errorMessage(p.Error); msg != "" {
		return nil, kakuninErrors.UpstreamParse(msg)
	}

	questions := append(decodeQuestions(p.Questions), decodeQuestions(p.ClarificationQuestions)...)

	res := &Result{
		Summary:                p.Summary,
		ProjectType:            p.ProjectType,
		Features:               p.Features,
		Constraints:            p.Constraints,
		SuggestedTechStack:     p.SuggestedTechStack,
		ClarificationQuestions: questions,
	}
	res.Normalize()
	return res, nil
}

func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "parser reported an error"
		}
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func decodeQuestions(items []json.RawMessage) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			Question string `json:"question"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && obj.Question != "" {
			out = append(out, obj.Question)
			continue
		}
		out = append(out, strings.TrimSpace(string(item)))
	}
	return out
}

func cleanModelJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
	} else if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+len("```"):]
	}
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func extractFirstBalancedJSON(input string, open, close byte) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(input); i++ {
		ch := input[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			if ch == '\\' {
				escaped = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case open:
			if depth == 0 {
				start = i
			}
			depth++
		case close:
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				return strings.TrimSpace(input[start : i+1])
			}
		}
	}
	return ""
}
