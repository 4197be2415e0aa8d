package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces credential material in log output.
const RedactedValue = "[REDACTED]"

var sensitiveKeyParts = []string{"token", "secret", "password", "authorization", "signature"}

// Sensitive reports whether a log key names credential material. Matching is
// by substring so "admin_token" and "jwt_secret" are caught as well.
func Sensitive(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, part := range sensitiveKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}

// MaskField always redacts a non-empty value.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

func redact(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindString || attr.Value.String() == "" {
		return attr
	}
	if Sensitive(attr.Key) {
		attr.Value = slog.StringValue(RedactedValue)
	}
	return attr
}
