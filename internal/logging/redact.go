package logging

import (
	"net/http"
	"regexp"
	"strings"
)

// Header and field names whose values are never logged.
var sensitiveFields = []string{
	"authorization",
	"token",
	"cookie",
	"password",
	"secret",
	"api_key",
	"apikey",
}

var secretPatterns = []*regexp.Regexp{
	// Bearer credentials
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/=-]{8,}`),
	// JWTs
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]{5,}\.[a-zA-Z0-9_-]{5,}\.[a-zA-Z0-9_-]*`),
	// token=... style query or form values
	regexp.MustCompile(`(?i)(access_token|token|api_key|apikey)=([^&\s]+)`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces credentials embedded in s.
func Redact(s string) string {
	result := s
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// IsSensitiveField reports whether a header or field name carries a credential.
func IsSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lower, field) {
			return true
		}
	}
	return false
}

// RedactHeaders returns a loggable copy of h with sensitive values masked.
func RedactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if IsSensitiveField(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = Redact(strings.Join(values, ","))
	}
	return out
}
