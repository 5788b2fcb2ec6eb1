package ai

import (
	logpkg "github.com/benvon/inbox-gateway/internal/logger"
)

// maxPreviewLength bounds prompt and completion previews logged in debug mode
const maxPreviewLength = 2000

// SanitizeAPIKey masks an API key for startup logs. Long keys keep their last
// four characters so a rotated key can be told apart from the old one.
func SanitizeAPIKey(apiKey string) string {
	masked := logpkg.SanitizeToken(apiKey)
	if len(apiKey) <= 12 {
		return masked
	}
	return masked + apiKey[len(apiKey)-4:]
}

// preview flattens text to a single bounded log line
func preview(s string) string {
	return logpkg.SanitizeString(s, maxPreviewLength)
}
