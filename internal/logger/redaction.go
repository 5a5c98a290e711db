package logger

import (
	"io"
	"regexp"
)

// Redactor redacts credentials from log output
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a new redactor with default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// OpenAI and Anthropic keys
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),

			// Bearer tokens
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),

			// key=value style credentials; values stop at JSON
			// punctuation and escapes
			regexp.MustCompile(`(?i)(api[_-]?key["\s:=]+)[^\s",}\]\\]+`),
			regexp.MustCompile(`(?i)(embedding[_-]key["\s:=]+)[^\s",}\]\\]+`),
			regexp.MustCompile(`(password["\s:=]+)[^\s",}\]\\]+`),
			regexp.MustCompile(`(token["\s:=]+)[a-zA-Z0-9._-]{20,}`),
			regexp.MustCompile(`(secret["\s:=]+)[^\s",}\]\\]+`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// AddSecret redacts an exact value, such as a configured API key
func (r *Redactor) AddSecret(secret string) {
	if len(secret) < 6 {
		return
	}
	r.patterns = append(r.patterns, regexp.MustCompile(regexp.QuoteMeta(secret)))
}

// Redact redacts sensitive information from a string.
// A pattern's first capture group, if any, is kept in front of the marker.
func (r *Redactor) Redact(s string) string {
	result := s
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, "${1}[REDACTED]")
	}
	return result
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so zerolog does not flag a short write
// when redaction changes the payload length.
func (w *redactingWriter) Write(p []byte) (int, error) {
	redacted := w.redactor.Redact(string(p))
	if _, err := w.writer.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	return len(p), nil
}
