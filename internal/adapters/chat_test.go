package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestExtractLatestUserText(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "string content",
			body: `{"messages":[{"role":"system","content":"sys"},{"role":"user","content":"first"},{"role":"assistant","content":"a"},{"role":"user","content":"second"}]}`,
			want: "second",
		},
		{
			name: "trailing assistant message",
			body: `{"messages":[{"role":"user","content":"ask"},{"role":"assistant","content":"answer"}]}`,
			want: "ask",
		},
		{
			name: "array parts",
			body: `{"messages":[{"role":"user","content":[{"type":"text","text":"look"},{"type":"image_url","image_url":{"url":"x"}},{"type":"text","text":"here"}]}]}`,
			want: "look\nhere",
		},
		{"no user", `{"messages":[{"role":"system","content":"sys"}]}`, ""},
		{"no messages", `{"model":"gpt-4o"}`, ""},
		{"invalid json", `not json`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractLatestUserText([]byte(tt.body)))
		})
	}
}

func TestExtractPromptText(t *testing.T) {
	body := []byte(`{"messages":[{"role":"system","content":"be brief"},{"role":"assistant","content":null},{"role":"user","content":[{"type":"text","text":"hi"}]}]}`)
	assert.Equal(t, "be brief\nhi", ExtractPromptText(body))
	assert.Equal(t, "", ExtractPromptText([]byte(`{}`)))
}

func TestRequestFields(t *testing.T) {
	body := []byte(`{"model":"gpt-4o-mini","user":" alice ","stream":true}`)
	assert.Equal(t, "gpt-4o-mini", ExtractModel(body))
	assert.Equal(t, "alice", ExtractUser(body))
	assert.True(t, IsStreaming(body))
	assert.False(t, IsStreaming([]byte(`{}`)))
}

func TestExtractContent(t *testing.T) {
	assert.Equal(t, "hi", ExtractContent([]byte(`{"choices":[{"message":{"content":"hi"}}]}`)))
	assert.Equal(t, "", ExtractContent([]byte(`{"choices":[{"message":{"content":null,"tool_calls":[]}}]}`)))
	assert.Equal(t, "", ExtractContent([]byte(`{"choices":[]}`)))
	assert.Equal(t, "", ExtractContent([]byte(`<html>`)))
}

func TestExtractUsage(t *testing.T) {
	openai := ExtractUsage([]byte(`{"usage":{"prompt_tokens":100,"completion_tokens":20,"total_tokens":120}}`))
	assert.Equal(t, UsageInfo{InputTokens: 100, OutputTokens: 20, TotalTokens: 120}, openai)

	noTotal := ExtractUsage([]byte(`{"usage":{"prompt_tokens":3,"completion_tokens":4}}`))
	assert.Equal(t, 7, noTotal.TotalTokens)

	ollama := ExtractUsage([]byte(`{"prompt_eval_count":11,"eval_count":5}`))
	assert.Equal(t, UsageInfo{InputTokens: 11, OutputTokens: 5, TotalTokens: 16}, ollama)

	assert.Equal(t, UsageInfo{}, ExtractUsage(nil))
	assert.Equal(t, UsageInfo{}, ExtractUsage([]byte(`{"choices":[]}`)))
}

func TestApplyContent(t *testing.T) {
	orig := []byte(`{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"API_KEY=abc"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1}}`)

	out, err := ApplyContent(orig, "blocked")
	require.NoError(t, err)
	assert.Equal(t, "blocked", gjson.GetBytes(out, contentPath).String())
	assert.Equal(t, "c1", gjson.GetBytes(out, "id").String(), "other fields untouched")
	assert.Equal(t, int64(1), gjson.GetBytes(out, "usage.prompt_tokens").Int())

	created, err := ApplyContent([]byte(`{"id":"c2"}`), "notice")
	require.NoError(t, err)
	assert.Equal(t, "notice", gjson.GetBytes(created, contentPath).String())
	assert.Equal(t, "assistant", gjson.GetBytes(created, "choices.0.message.role").String())

	_, err = ApplyContent([]byte(`data: {"x":1}`), "n")
	assert.Error(t, err)
	_, err = ApplyContent([]byte(`[1,2]`), "n")
	assert.Error(t, err)
}
