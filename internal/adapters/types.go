// Package adapters reads and patches OpenAI chat-completion payloads.
//
// DESIGN: All access goes through gjson/sjson on the raw bytes so the
// forwarded request and relayed response stay byte-identical unless the
// proxy deliberately rewrites them. Deliberate request edits are the routing
// prefix strip on "model" and stream_options.include_usage on streams.
// Missing or malformed fields yield zero values, never errors:
//   - request side:  model, user, latest user utterance, stream flag
//   - response side: choices[0].message.content, token usage
//   - SSE side:      joined delta content, final usage chunk
package adapters

// UsageInfo holds token usage extracted from API response.
type UsageInfo struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
