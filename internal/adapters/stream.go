package adapters

import (
	"bytes"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// =============================================================================
// SSE (stream: true)
// =============================================================================

const sseDone = "[DONE]"

// streamChunks returns the JSON payload of every "data:" line, skipping
// [DONE] and anything that is not valid JSON.
func streamChunks(body []byte) [][]byte {
	var chunks [][]byte
	for _, line := range bytes.Split(body, []byte("\n")) {
		line = bytes.TrimSpace(line)
		payload, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue
		}
		payload = bytes.TrimSpace(payload)
		if string(payload) == sseDone || !gjson.ValidBytes(payload) {
			continue
		}
		chunks = append(chunks, payload)
	}
	return chunks
}

// IsEventStream reports whether body looks like a buffered SSE response.
func IsEventStream(body []byte) bool {
	return len(streamChunks(body)) > 0
}

// ExtractStreamContent joins the choices[0].delta.content fragments of a
// buffered SSE body.
func ExtractStreamContent(body []byte) string {
	var b strings.Builder
	for _, chunk := range streamChunks(body) {
		b.WriteString(gjson.GetBytes(chunk, "choices.0.delta.content").String())
	}
	return b.String()
}

// ExtractStreamUsage returns the usage of the last chunk carrying one
// (OpenAI sends it only with stream_options.include_usage).
func ExtractStreamUsage(body []byte) UsageInfo {
	var usage UsageInfo
	for _, chunk := range streamChunks(body) {
		if gjson.GetBytes(chunk, "usage").IsObject() {
			usage = ExtractUsage(chunk)
		}
	}
	return usage
}

// StreamContent builds a replacement SSE body carrying content as a single
// delta, a stop chunk and the [DONE] terminator. The id and model of the
// first upstream chunk are kept when present.
func StreamContent(upstreamBody []byte, content string) []byte {
	id, model := "chatcmpl-sentinel", "sentinel"
	if chunks := streamChunks(upstreamBody); len(chunks) > 0 {
		if v := gjson.GetBytes(chunks[0], "id").String(); v != "" {
			id = v
		}
		if v := gjson.GetBytes(chunks[0], "model").String(); v != "" {
			model = v
		}
	}
	created := time.Now().Unix()

	chunk := func(delta map[string]any, finish any) []byte {
		out := []byte(`{"id":"","object":"chat.completion.chunk","created":0,"model":"","choices":[{"index":0,"delta":{},"finish_reason":null}]}`)
		out, _ = sjson.SetBytes(out, "id", id)
		out, _ = sjson.SetBytes(out, "created", created)
		out, _ = sjson.SetBytes(out, "model", model)
		out, _ = sjson.SetBytes(out, "choices.0.delta", delta)
		out, _ = sjson.SetBytes(out, "choices.0.finish_reason", finish)
		return out
	}

	var b bytes.Buffer
	for _, c := range [][]byte{
		chunk(map[string]any{"role": "assistant", "content": content}, nil),
		chunk(map[string]any{}, "stop"),
	} {
		b.WriteString("data: ")
		b.Write(c)
		b.WriteString("\n\n")
	}
	b.WriteString("data: " + sseDone + "\n\n")
	return b.Bytes()
}
