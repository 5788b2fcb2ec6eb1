package logger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxPathLength is the maximum length for URL paths in logs
	MaxPathLength = 500
	// MaxSubjectLength bounds identity provider subjects in logs
	MaxSubjectLength = 128
	// MaxErrorMessageLength is the maximum length for error messages in logs
	MaxErrorMessageLength = 1000
	// MaxGeneralStringLength is the maximum length for general strings in logs
	MaxGeneralStringLength = 2000

	redacted = "[REDACTED]"
)

// SanitizePath sanitizes a URL path for safe logging
func SanitizePath(path string) string {
	return SanitizeString(path, MaxPathLength)
}

// SanitizeString removes control characters, repairs UTF-8 and truncates to maxLength
func SanitizeString(s string, maxLength int) string {
	if s == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = MaxGeneralStringLength
	}
	s = filterRunes(s)
	if len(s) > maxLength {
		s = s[:maxLength] + "..."
	}
	return s
}

func filterRunes(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	var builder strings.Builder
	builder.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) || r == ' ' || r == '\t' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// SanitizeError sanitizes an error message for safe logging
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error(), MaxErrorMessageLength)
}

// SanitizeSubject sanitizes an identity provider subject claim
func SanitizeSubject(sub string) string {
	return SanitizeString(sub, MaxSubjectLength)
}

// SanitizeToken keeps only enough of a bearer or OAuth token to correlate log lines
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return redacted
	}
	return token[:6] + redacted
}

// SanitizeEmail masks the local part of an address: "jane@example.com" -> "j***@example.com"
func SanitizeEmail(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at <= 0 {
		return SanitizeString(addr, MaxSubjectLength)
	}
	return SanitizeString(addr[:1]+"***"+addr[at:], MaxSubjectLength)
}
