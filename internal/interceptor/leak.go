package interceptor

import "strings"

// RedactedSnippet replaces leaked content in the audit log.
const RedactedSnippet = "[REDACTED]"

// Notices substituted for the model's content.
const (
	LoopNotice     = "🚨 SENTINEL: Semantic loop detected. The request was blocked before reaching the model."
	FuzzyNotice    = "🚨 SENTINEL: Repetitive loop detected. The request was blocked before reaching the model."
	LeakNotice     = "🛡️ SENTINEL: Response blocked due to a potential data leak."
	ThrottleNotice = "🛑 SENTINEL: Excessive spend detected. Response withheld by the economic throttle."
)

// containsLeak reports whether content holds any marker. Matching is
// case-sensitive; empty markers never match.
func containsLeak(content string, markers []string) bool {
	if content == "" {
		return false
	}
	for _, m := range markers {
		if m != "" && strings.Contains(content, m) {
			return true
		}
	}
	return false
}
