package orchestrator

import (
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"
)

// TaskResult is the reply contract of the model
type TaskResult struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

// ParseTier identifies the parser that produced a result
type ParseTier int

const (
	TierNone ParseTier = iota
	TierJSON
	TierPattern
)

func (t ParseTier) String() string {
	switch t {
	case TierJSON:
		return "json"
	case TierPattern:
		return "pattern"
	default:
		return "none"
	}
}

// ParseOutcome is the tagged result of ParseReply. OK is false when no tier matched.
type ParseOutcome struct {
	Result TaskResult
	Tier   ParseTier
	OK     bool
}

type replyParser struct {
	tier  ParseTier
	parse func(reply string) (TaskResult, bool)
}

var replyParsers = []replyParser{
	{tier: TierJSON, parse: parseJSONObject},
	{tier: TierPattern, parse: parsePatterns},
}

// ParseReply runs the parser chain over reply and stops at the first tier
// yielding a non-empty content and filename.
func ParseReply(reply string) ParseOutcome {
	for _, p := range replyParsers {
		if result, ok := p.parse(reply); ok {
			return ParseOutcome{Result: result, Tier: p.tier, OK: true}
		}
	}
	return ParseOutcome{Tier: TierNone}
}

func parseJSONObject(reply string) (TaskResult, bool) {
	candidate, ok := firstObject(reply)
	if !ok {
		return TaskResult{}, false
	}

	object := normalizeObject(candidate)
	repaired := false
	if !gjson.Valid(object) {
		fixed, err := jsonrepair.JSONRepair(candidate)
		if err != nil || !gjson.Valid(fixed) {
			return TaskResult{}, false
		}
		object = fixed
		repaired = true
	}

	content := gjson.Get(object, "content")
	filename := gjson.Get(object, "filename")
	if content.Type != gjson.String || filename.Type != gjson.String {
		return TaskResult{}, false
	}

	result := TaskResult{Content: content.Str, Filename: filename.Str}
	if repaired {
		result.Content = restoreEscapes(result.Content, candidate)
		result.Filename = restoreEscapes(result.Filename, candidate)
	}
	if result.Content == "" || result.Filename == "" {
		return TaskResult{}, false
	}
	return result, true
}

// normalizeObject quotes bare object keys and closes an unterminated object.
// String literals are copied byte for byte so their escapes survive.
func normalizeObject(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)

	var closers []byte
	inString := false
	escaped := false
	expectKey := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			expectKey = false
			b.WriteByte(c)
		case c == '{':
			closers = append(closers, '}')
			expectKey = true
			b.WriteByte(c)
		case c == '[':
			closers = append(closers, ']')
			expectKey = false
			b.WriteByte(c)
		case c == '}' || c == ']':
			if len(closers) > 0 {
				closers = closers[:len(closers)-1]
			}
			expectKey = false
			b.WriteByte(c)
		case c == ',':
			expectKey = len(closers) > 0 && closers[len(closers)-1] == '}'
			b.WriteByte(c)
		case expectKey && isIdentStart(c):
			end := i
			for end < len(s) && isIdentPart(s[end]) {
				end++
			}
			next := end
			for next < len(s) && isSpace(s[next]) {
				next++
			}
			if next < len(s) && s[next] == ':' {
				b.WriteByte('"')
				b.WriteString(s[i:end])
				b.WriteByte('"')
			} else {
				b.WriteString(s[i:end])
			}
			i = end - 1
			expectKey = false
		default:
			if !isSpace(c) {
				expectKey = false
			}
			b.WriteByte(c)
		}
	}

	out := b.String()
	if inString {
		if escaped {
			out = out[:len(out)-1]
		}
		out += `"`
	} else if len(closers) > 0 {
		out = strings.TrimSuffix(strings.TrimRight(out, " \t\r\n"), ",")
	}
	for i := len(closers) - 1; i >= 0; i-- {
		out += string(closers[i])
	}
	return out
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c == '-' || (c >= '0' && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// restoreEscapes decodes a repaired value once more when the repair kept the
// escape sequences of the original literal as text: the value still holds a
// backslash and appears verbatim in the candidate.
func restoreEscapes(value, candidate string) string {
	if !strings.Contains(value, `\`) || !strings.Contains(candidate, value) {
		return value
	}
	quoted := `"` + value + `"`
	if !gjson.Valid(quoted) {
		return value
	}
	return gjson.Parse(quoted).Str
}

// firstObject returns the first balanced {...} span of s, skipping braces
// inside string literals. An unterminated object is returned up to the end
// of s so the repair step can close it.
func firstObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if start < 0 {
			if c == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	if start < 0 {
		return "", false
	}
	return s[start:], true
}

var (
	contentPattern  = regexp.MustCompile(`content:\s*"([^"]*)"`)
	filenamePattern = regexp.MustCompile(`filename:\s*"([^"]*)"`)
)

func parsePatterns(reply string) (TaskResult, bool) {
	content := contentPattern.FindStringSubmatch(reply)
	filename := filenamePattern.FindStringSubmatch(reply)
	if content == nil || filename == nil {
		return TaskResult{}, false
	}
	if content[1] == "" || filename[1] == "" {
		return TaskResult{}, false
	}
	return TaskResult{Content: content[1], Filename: filename[1]}, true
}
