// Package strutil holds the small string helpers shared by the decoder, the
// config loader and the dashboard.
package strutil

import (
	"strings"
	"unicode/utf8"
)

// NormalizeLower trims surrounding whitespace and converts to lower case.
// Use for config enums, ack actions and repeat modes where case is not significant.
func NormalizeLower(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Truncate returns s cut to at most max bytes without splitting a UTF-8
// sequence. The result never aliases s when s was cut, so callers can hold on
// to it without pinning a large decode buffer.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.Clone(s[:cut])
}

// exeSuffix is stripped from process names regardless of case.
const exeSuffix = ".exe"

// ProcessName canonicalizes a host process name for display: surrounding
// whitespace is trimmed and a single trailing ".exe" (any case) is removed.
// Names that are only the suffix are kept as-is.
func ProcessName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) > len(exeSuffix) && strings.EqualFold(name[len(name)-len(exeSuffix):], exeSuffix) {
		name = name[:len(name)-len(exeSuffix)]
	}
	return name
}
