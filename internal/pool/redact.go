// Package pool supervises agent subprocesses: one pool per project,
// each agent a child process with a PID lock file, a sanitized output
// stream, and a persisted registration row.
package pool

import "regexp"

// Redacted replaces every secret match in agent output.
const Redacted = "[REDACTED]"

// sensitivePatterns match credentials that must never reach observers.
// All matching is case-insensitive.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`(?i)ANTHROPIC_API_KEY=[^\s]+`),
	regexp.MustCompile(`(?i)api[_-]?key[=:][^\s]+`),
	regexp.MustCompile(`(?i)token[=:][^\s]+`),
	regexp.MustCompile(`(?i)password[=:][^\s]+`),
	regexp.MustCompile(`(?i)secret[=:][^\s]+`),
	regexp.MustCompile(`(?i)ghp_[a-zA-Z0-9]{36,}`),
	regexp.MustCompile(`(?i)gho_[a-zA-Z0-9]{36,}`),
	regexp.MustCompile(`(?i)ghs_[a-zA-Z0-9]{36,}`),
	regexp.MustCompile(`(?i)ghr_[a-zA-Z0-9]{36,}`),
	regexp.MustCompile(`(?i)aws[_-]?(access|secret)[_-]?key[=:][^\s]+`),
}

// Sanitize strips credentials from one output line.
func Sanitize(line string) string {
	for _, p := range sensitivePatterns {
		line = p.ReplaceAllString(line, Redacted)
	}
	return line
}
