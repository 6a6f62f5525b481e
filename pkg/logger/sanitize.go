package logger

import (
	"log/slog"
	"strings"
)

// MaskIdentifier keeps the first character of a username or similar identifier
// and masks the rest, e.g. "root" -> "r***".
func MaskIdentifier(id string) string {
	if id == "" {
		return ""
	}
	runes := []rune(id)
	if len(runes) == 1 {
		return "*"
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-1)
}

// RedactedAttr returns "[REDACTED]" in production and the real value elsewhere
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

var sensitiveParams = []string{
	"password",
	"token",
	"secret",
	"code",
	"signature",
	"challenge",
	"username",
	"fingerprint",
	"auth",
}

// SanitizeQueryString reports whether the raw query mentions a sensitive parameter,
// in which case the whole query string should be dropped from logs.
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
