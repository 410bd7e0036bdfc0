package adapters

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const contentPath = "choices.0.message.content"

// =============================================================================
// REQUEST SIDE
// =============================================================================

// ExtractModel returns the "model" field.
func ExtractModel(body []byte) string {
	return gjson.GetBytes(body, "model").String()
}

// ExtractUser returns the OpenAI "user" field, used as a session fallback.
func ExtractUser(body []byte) string {
	return strings.TrimSpace(gjson.GetBytes(body, "user").String())
}

// IsStreaming reports whether the request asks for an SSE stream.
func IsStreaming(body []byte) bool {
	return gjson.GetBytes(body, "stream").Bool()
}

// WithStreamUsage asks an OpenAI-compatible upstream to append a usage chunk
// to the stream so the turn can be priced. An explicit caller choice is kept.
func WithStreamUsage(body []byte) []byte {
	if gjson.GetBytes(body, "stream_options.include_usage").Exists() {
		return body
	}
	out, err := sjson.SetBytes(body, "stream_options.include_usage", true)
	if err != nil {
		return body
	}
	return out
}

// ExtractLatestUserText returns the text of the last message with role "user".
// Content may be a string or an array of parts; text parts are joined by newlines.
func ExtractLatestUserText(body []byte) string {
	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() {
		return ""
	}
	items := messages.Array()
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Get("role").String() != "user" {
			continue
		}
		return contentText(items[i].Get("content"))
	}
	return ""
}

// ExtractPromptText joins the text of every message, used to estimate the
// prompt size of a request that was never forwarded.
func ExtractPromptText(body []byte) string {
	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() {
		return ""
	}
	var b strings.Builder
	for _, m := range messages.Array() {
		text := contentText(m.Get("content"))
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(text)
	}
	return b.String()
}

func contentText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if !content.IsArray() {
		return ""
	}
	var parts []string
	for _, part := range content.Array() {
		if part.Get("type").String() == "text" {
			parts = append(parts, part.Get("text").String())
		}
	}
	return strings.Join(parts, "\n")
}

// =============================================================================
// RESPONSE SIDE
// =============================================================================

// ExtractContent returns choices[0].message.content, or "" if absent or not a string.
func ExtractContent(responseBody []byte) string {
	r := gjson.GetBytes(responseBody, contentPath)
	if r.Type != gjson.String {
		return ""
	}
	return r.String()
}

// ExtractUsage extracts token usage from a chat completion response.
// Ollama-native responses report prompt_eval_count/eval_count instead of usage.
func ExtractUsage(responseBody []byte) UsageInfo {
	if len(responseBody) == 0 {
		return UsageInfo{}
	}

	usage := gjson.GetBytes(responseBody, "usage")
	if usage.Exists() {
		in := int(usage.Get("prompt_tokens").Int())
		out := int(usage.Get("completion_tokens").Int())
		total := int(usage.Get("total_tokens").Int())
		if total == 0 {
			total = in + out
		}
		return UsageInfo{InputTokens: max(in, 0), OutputTokens: max(out, 0), TotalTokens: max(total, 0)}
	}

	in := int(gjson.GetBytes(responseBody, "prompt_eval_count").Int())
	out := int(gjson.GetBytes(responseBody, "eval_count").Int())
	return UsageInfo{InputTokens: max(in, 0), OutputTokens: max(out, 0), TotalTokens: max(in+out, 0)}
}

// ApplyContent replaces choices[0].message.content, creating the first choice
// if the response has none. Only valid JSON objects are patched.
func ApplyContent(responseBody []byte, content string) ([]byte, error) {
	if !gjson.ValidBytes(responseBody) || !gjson.ParseBytes(responseBody).IsObject() {
		return nil, fmt.Errorf("response is not a JSON object")
	}

	if gjson.GetBytes(responseBody, "choices.0").Exists() {
		out, err := sjson.SetBytes(responseBody, contentPath, content)
		if err != nil {
			return nil, fmt.Errorf("setting content: %w", err)
		}
		return out, nil
	}

	choice, err := sjson.SetBytes([]byte(`{"index":0,"message":{"role":"assistant"},"finish_reason":"stop"}`), "message.content", content)
	if err != nil {
		return nil, fmt.Errorf("building choice: %w", err)
	}
	out, err := sjson.SetRawBytes(responseBody, "choices", append(append([]byte{'['}, choice...), ']'))
	if err != nil {
		return nil, fmt.Errorf("setting choices: %w", err)
	}
	return out, nil
}
