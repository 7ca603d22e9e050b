package logger

import (
	"log/slog"
	"strings"
)

// SanitizedGAN masks a gift account number for logging, keeping only the
// last four characters (e.g., "************5678")
func SanitizedGAN(gan string) string {
	if len(gan) <= 4 {
		return strings.Repeat("*", len(gan))
	}
	return strings.Repeat("*", len(gan)-4) + gan[len(gan)-4:]
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

// SanitizeQueryString checks if query string contains sensitive parameters
// and returns true if the entire query string should be redacted
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := map[string]bool{
		"password": true,
		"token":    true,
		"secret":   true,
		"api_key":  true,
		"apikey":   true,
		"auth":     true,
		"gan":      true,
		"payload":  true,
	}

	query := strings.ToLower(rawQuery)
	for param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
