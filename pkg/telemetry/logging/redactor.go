package logging

import (
	"regexp"
	"strings"
)

// Pattern is a custom redaction rule.
type Pattern struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// Built-in pattern names.
const (
	PatternAPIKey      = "api_key"
	PatternEmail       = "email"
	PatternIPv4        = "ipv4"
	PatternPassword    = "password"
	PatternBearerToken = "bearer_token"
)

type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Redactor scrubs personal data and credentials from log values.
type Redactor struct {
	patterns []*redactPattern
}

var defaultPatterns = []Pattern{
	{PatternBearerToken, `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`, "Bearer ***"},
	{PatternAPIKey, `(sk-[a-zA-Z0-9]+|api[-_]?key[-_:=]\s*[a-zA-Z0-9]+)`, "sk-***"},
	{PatternPassword, `(password|passwd|pwd)[:=]\s*[^\s]+`, "$1: ***"},
	{PatternEmail, `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, "***@***"},
	{PatternIPv4, `\b(?:\d{1,3}\.){3}\d{1,3}\b`, "*.*.*.*"},
}

// NewRedactor creates a redactor with the built-in patterns followed by
// custom ones. Custom patterns that do not compile are returned as an error.
func NewRedactor(custom []Pattern) (*Redactor, error) {
	r := &Redactor{}
	for _, p := range defaultPatterns {
		r.patterns = append(r.patterns, &redactPattern{p.Name, regexp.MustCompile(p.Pattern), p.Replacement})
	}
	for _, p := range custom {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, &PatternError{Name: p.Name, Err: err}
		}
		r.patterns = append(r.patterns, &redactPattern{p.Name, re, p.Replacement})
	}
	return r, nil
}

// PatternError reports a custom pattern that does not compile.
type PatternError struct {
	Name string
	Err  error
}

func (e *PatternError) Error() string {
	return "invalid redaction pattern " + e.Name + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// RedactString applies every pattern to value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

var sensitiveKeys = []string{
	"password", "passwd", "pwd",
	"secret", "token", "api_key", "apikey",
	"authorization", "private_key", "privatekey",
}

// IsSensitiveKey reports whether a field name denotes a credential. Values
// under such keys are replaced outright.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// RedactAPIKey keeps the first four characters of a key.
func RedactAPIKey(apiKey string) string {
	if len(apiKey) <= 4 {
		return "***"
	}
	return apiKey[:4] + "***"
}
