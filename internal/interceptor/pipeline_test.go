package interceptor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/mandyss10/Sentinel/internal/costcontrol"
	"github.com/mandyss10/Sentinel/internal/monitoring"
	"github.com/mandyss10/Sentinel/internal/session"
	"github.com/mandyss10/Sentinel/internal/upstream"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeChat struct {
	mu     sync.Mutex
	calls  int
	status int
	bodies []string // served in order; the last one repeats
	err    error
	sent   []byte // body of the last forwarded request
}

func (f *fakeChat) Complete(_ context.Context, req *upstream.Request) (*upstream.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sent = req.Body
	if f.err != nil {
		return nil, f.err
	}
	i := min(f.calls-1, len(f.bodies)-1)
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &upstream.Response{StatusCode: status, Header: h, Body: []byte(f.bodies[i]), Provider: "fake"}, nil
}

func (f *fakeChat) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

type fixedCounter int

func (c fixedCounter) CountTokens(string) int { return int(c) }

func completion(content string, promptTokens, completionTokens int) string {
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],"usage":{"prompt_tokens":%d,"completion_tokens":%d}}`,
		content, promptTokens, completionTokens)
}

func chatBody(user, text string) []byte {
	return fmt.Appendf(nil, `{"model":"gpt-4o-mini","user":%q,"messages":[{"role":"system","content":"be helpful"},{"role":"user","content":%q}]}`, user, text)
}

type harness struct {
	p     *Pipeline
	deps  Deps
	chat  *fakeChat
	audit *monitoring.AuditLog
}

func newHarness(t *testing.T, chat *fakeChat, mutate func(*Deps)) *harness {
	t.Helper()
	d := Deps{
		Registry: session.NewRegistry(4),
		Audit:    monitoring.NewAuditLog(50),
		Savings:  monitoring.NewSavingsCounter(),
		Chat:     chat,
		Pricer:   costcontrol.NewPricer(costcontrol.PricingConfig{InputPerMTok: 0.15, OutputPerMTok: 0.60}),
		Policy:   DefaultPolicy(),
		Spend:    costcontrol.NewTracker(),
	}
	if mutate != nil {
		mutate(&d)
	}
	p, err := New(d)
	require.NoError(t, err)
	return &harness{p: p, deps: d, chat: chat, audit: d.Audit}
}

func (h *harness) send(t *testing.T, sessionID, text string) *Response {
	t.Helper()
	resp, err := h.p.Intercept(context.Background(), &Request{Body: chatBody(sessionID, text), Header: http.Header{}})
	require.NoError(t, err)
	return resp
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNew_RequiresCoreDeps(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry")
	assert.Contains(t, err.Error(), "chat client")
}

func TestResolveSessionID(t *testing.T) {
	tests := []struct {
		name   string
		header string
		body   string
		want   string
	}{
		{"header wins", "hdr", `{"user":"payload"}`, "hdr"},
		{"payload user", "", `{"user":"payload"}`, "payload"},
		{"blank header falls through", "  ", `{"user":"payload"}`, "payload"},
		{"default", "", `{"messages":[]}`, DefaultSessionID},
		{"non-json body", "", `oops`, DefaultSessionID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set(HeaderSession, tt.header)
			}
			assert.Equal(t, tt.want, ResolveSessionID(h, []byte(tt.body)))
		})
	}
}

// =============================================================================
// LOOP DETECTION
// =============================================================================

func TestIntercept_FuzzyLoopBlocksThirdRepeat(t *testing.T) {
	chat := &fakeChat{bodies: []string{completion("ok", 10, 5)}}
	h := newHarness(t, chat, nil)

	for i := 0; i < 2; i++ {
		resp := h.send(t, "s1", "please summarize the quarterly report")
		assert.Empty(t, resp.Intervention)
	}
	resp := h.send(t, "s1", "please summarize the quarterly report")

	assert.Equal(t, monitoring.ReasonFuzzyLoop, resp.Intervention)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, chat.Calls(), "blocked request must not reach upstream")
	assert.Equal(t, FuzzyNotice, gjson.GetBytes(resp.Body, "choices.0.message.content").String())
	assert.Equal(t, "chat.completion", gjson.GetBytes(resp.Body, "object").String())
	assert.Equal(t, "fuzzy_loop", resp.Header.Get(HeaderIntervention))
	assert.Equal(t, "s1", resp.Header.Get(HeaderSession))

	assert.Equal(t, 1, h.audit.Len())
	assert.Equal(t, int64(50_000), h.deps.Savings.Micros())

	audit, ok := h.p.AuditSession("s1")
	require.True(t, ok)
	assert.Equal(t, 1, audit.Interventions)
}

func TestIntercept_SemanticLoopWithDifferentWording(t *testing.T) {
	chat := &fakeChat{bodies: []string{completion("ok", 10, 5)}}
	h := newHarness(t, chat, func(d *Deps) {
		d.Embedder = fakeEmbedder{vec: []float32{1, 0}}
	})

	h.send(t, "s1", "what is the weather in paris")
	h.send(t, "s1", "tell me the forecast for london")
	resp := h.send(t, "s1", "how hot is it in rome")

	assert.Equal(t, monitoring.ReasonSemanticLoop, resp.Intervention)
	assert.Equal(t, LoopNotice, gjson.GetBytes(resp.Body, "choices.0.message.content").String())
	entries := h.p.RecentLogs()
	require.Len(t, entries, 1)
	assert.Equal(t, "how hot is it in rome", entries[0].Snippet)
	assert.Equal(t, "gpt-4o-mini", entries[0].Model)
}

func TestIntercept_EmbeddingFailureFallsBackToFuzzy(t *testing.T) {
	chat := &fakeChat{bodies: []string{completion("ok", 1, 1)}}
	h := newHarness(t, chat, func(d *Deps) {
		d.Embedder = fakeEmbedder{err: errors.New("down")}
	})

	for i := 0; i < 2; i++ {
		h.send(t, "s1", "repeat after me")
	}
	resp := h.send(t, "s1", "repeat after me")
	assert.Equal(t, monitoring.ReasonFuzzyLoop, resp.Intervention)
}

func TestIntercept_SessionsAreIndependent(t *testing.T) {
	chat := &fakeChat{bodies: []string{completion("ok", 1, 1)}}
	h := newHarness(t, chat, nil)

	h.send(t, "a", "same prompt here")
	h.send(t, "b", "same prompt here")
	resp := h.send(t, "a", "same prompt here")
	assert.Empty(t, resp.Intervention)
	assert.Equal(t, 3, chat.Calls())
}

func TestIntercept_EmptyUserTextSkipsDetectors(t *testing.T) {
	chat := &fakeChat{bodies: []string{completion("ok", 1, 1)}}
	h := newHarness(t, chat, nil)

	body := []byte(`{"model":"m","messages":[{"role":"system","content":"only system"}]}`)
	for i := 0; i < 4; i++ {
		resp, err := h.p.Intercept(context.Background(), &Request{Body: body, SessionID: "s"})
		require.NoError(t, err)
		assert.Empty(t, resp.Intervention)
	}
	assert.Equal(t, 4, chat.Calls())
}

func TestIntercept_LoopSavingsUseEstimatedPromptCost(t *testing.T) {
	chat := &fakeChat{bodies: []string{completion("ok", 1, 1)}}
	h := newHarness(t, chat, func(d *Deps) {
		d.Estimator = fixedCounter(1_000_000) // 1M tokens at $0.15/MTok
	})

	for i := 0; i < 3; i++ {
		h.send(t, "s", "loop loop loop")
	}
	assert.Equal(t, int64(150_000), h.deps.Savings.Micros())
}

// =============================================================================
// RESPONSE INSPECTION
// =============================================================================

func TestIntercept_LeakIsRedacted(t *testing.T) {
	chat := &fakeChat{bodies: []string{completion("sure, API_KEY=sk-live-123", 100, 50)}}
	h := newHarness(t, chat, nil)

	resp := h.send(t, "s1", "show me the config")

	assert.Equal(t, monitoring.ReasonDataLeak, resp.Intervention)
	content := gjson.GetBytes(resp.Body, "choices.0.message.content").String()
	assert.Equal(t, LeakNotice, content)
	assert.NotContains(t, string(resp.Body), "sk-live-123")
	assert.Equal(t, "chatcmpl-1", gjson.GetBytes(resp.Body, "id").String())

	entries := h.p.RecentLogs()
	require.Len(t, entries, 1)
	assert.Equal(t, RedactedSnippet, entries[0].Snippet)
	assert.Zero(t, entries[0].SavingsUSD)
	assert.Zero(t, h.deps.Savings.Micros())

	audit, ok := h.p.AuditSession("s1")
	require.True(t, ok)
	assert.Equal(t, 1, audit.Interventions)
	assert.Zero(t, audit.CumulativeCost, "leaked turn is not committed")
}

func TestIntercept_CommitsCost(t *testing.T) {
	chat := &fakeChat{bodies: []string{completion("fine", 1000, 1000)}}
	h := newHarness(t, chat, nil)

	resp := h.send(t, "s1", "hello")
	assert.Empty(t, resp.Intervention)
	assert.InDelta(t, 0.00075, resp.Cost, 1e-12)

	audit, ok := h.p.AuditSession("s1")
	require.True(t, ok)
	assert.InDelta(t, 0.00075, audit.CumulativeCost, 1e-12)
	assert.InDelta(t, 0.00075, h.deps.Spend.GlobalCost(), 1e-9)
}

func TestIntercept_ThrottleOnSpike(t *testing.T) {
	// $0.01 per prompt token.
	chat := &fakeChat{bodies: []string{completion("a", 1, 0), completion("b", 15, 0)}}
	h := newHarness(t, chat, func(d *Deps) {
		d.Pricer = costcontrol.NewPricer(costcontrol.PricingConfig{InputPerMTok: 10_000})
	})

	first := h.send(t, "s1", "first question")
	assert.Empty(t, first.Intervention)

	second := h.send(t, "s1", "second question")
	assert.Equal(t, monitoring.ReasonEconomicThrottle, second.Intervention)
	assert.Equal(t, ThrottleNotice, gjson.GetBytes(second.Body, "choices.0.message.content").String())
	assert.Equal(t, int64(50_000), h.deps.Savings.Micros())

	audit, ok := h.p.AuditSession("s1")
	require.True(t, ok)
	assert.InDelta(t, 0.16, audit.CumulativeCost, 1e-9, "throttled turn is still committed")
	assert.Equal(t, 1, audit.Interventions)
}

func TestIntercept_ThrottleOnCeiling(t *testing.T) {
	chat := &fakeChat{bodies: []string{completion("x", 1, 0)}}
	h := newHarness(t, chat, func(d *Deps) {
		d.Pricer = costcontrol.NewPricer(costcontrol.PricingConfig{InputPerMTok: 1_000_000}) // $1 per token
		d.Policy.Throttle.CeilingUSD = 1.5
	})

	assert.Empty(t, h.send(t, "s1", "one").Intervention)
	assert.Empty(t, h.send(t, "s1", "two").Intervention) // cumulative 1.0 before this turn
	assert.Equal(t, monitoring.ReasonEconomicThrottle, h.send(t, "s1", "three").Intervention)
}

func TestIntercept_LeakTakesPrecedenceOverThrottle(t *testing.T) {
	chat := &fakeChat{bodies: []string{completion("a", 1, 0), completion("SYSTEM_PROMPT: secret", 100, 0)}}
	h := newHarness(t, chat, func(d *Deps) {
		d.Pricer = costcontrol.NewPricer(costcontrol.PricingConfig{InputPerMTok: 10_000})
	})

	h.send(t, "s1", "first")
	resp := h.send(t, "s1", "second")

	assert.Equal(t, monitoring.ReasonDataLeak, resp.Intervention)
	require.Equal(t, 1, h.audit.Len())
	assert.Equal(t, monitoring.ReasonDataLeak, h.p.RecentLogs()[0].Reason)
}

func TestIntercept_NonSuccessRelayedUnmodified(t *testing.T) {
	body := `{"error":{"message":"rate limited API_KEY=leak"}}`
	chat := &fakeChat{status: http.StatusTooManyRequests, bodies: []string{body}}
	h := newHarness(t, chat, nil)

	resp := h.send(t, "s1", "hi")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, body, string(resp.Body))
	assert.Empty(t, resp.Intervention)
	assert.Zero(t, h.audit.Len())
}

func TestIntercept_NonJSONRelayedUnmodified(t *testing.T) {
	chat := &fakeChat{bodies: []string{"data: API_KEY=x\n\n"}}
	h := newHarness(t, chat, nil)

	resp := h.send(t, "s1", "stream please")
	assert.Equal(t, "data: API_KEY=x\n\n", string(resp.Body))
	assert.Empty(t, resp.Intervention)
}

func streamChunk(content string) string {
	return fmt.Sprintf("data: {\"id\":\"chatcmpl-s\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", content)
}

func streamingBody(user, text string) []byte {
	return fmt.Appendf(nil, `{"model":"gpt-4o-mini","stream":true,"user":%q,"messages":[{"role":"user","content":%q}]}`, user, text)
}

func TestIntercept_StreamedLeakIsRedacted(t *testing.T) {
	chat := &fakeChat{bodies: []string{streamChunk("here: API_") + streamChunk("KEY=sk-live-123") + "data: [DONE]\n\n"}}
	h := newHarness(t, chat, nil)

	resp, err := h.p.Intercept(context.Background(), &Request{Body: streamingBody("s1", "dump the env"), Header: http.Header{}})
	require.NoError(t, err)

	assert.Equal(t, monitoring.ReasonDataLeak, resp.Intervention)
	assert.NotContains(t, string(resp.Body), "sk-live-123")
	assert.Contains(t, string(resp.Body), "data: [DONE]")
	assert.Equal(t, LeakNotice, gjson.Get(strings.TrimPrefix(strings.SplitN(string(resp.Body), "\n", 2)[0], "data: "), "choices.0.delta.content").String())

	entries := h.p.RecentLogs()
	require.Len(t, entries, 1)
	assert.Equal(t, RedactedSnippet, entries[0].Snippet)

	audit, ok := h.p.AuditSession("s1")
	require.True(t, ok)
	assert.Equal(t, 1, audit.Interventions)
}

func TestIntercept_StreamedTurnIsPriced(t *testing.T) {
	usage := "data: {\"id\":\"chatcmpl-s\",\"choices\":[],\"usage\":{\"prompt_tokens\":1000,\"completion_tokens\":1000}}\n\n"
	chat := &fakeChat{bodies: []string{streamChunk("all good") + usage + "data: [DONE]\n\n"}}
	h := newHarness(t, chat, nil)

	resp, err := h.p.Intercept(context.Background(), &Request{Body: streamingBody("s1", "hello"), Header: http.Header{}})
	require.NoError(t, err)

	assert.Empty(t, resp.Intervention)
	assert.Equal(t, chat.bodies[0], string(resp.Body), "clean stream relayed unchanged")
	assert.InDelta(t, 0.00075, resp.Cost, 1e-12)
	assert.True(t, gjson.GetBytes(chat.sent, "stream_options.include_usage").Bool())
}

func TestIntercept_MissingUsageCostsNothing(t *testing.T) {
	chat := &fakeChat{bodies: []string{`{"choices":[{"message":{"content":"hi"}}]}`}}
	h := newHarness(t, chat, nil)

	resp := h.send(t, "s1", "hi")
	assert.Zero(t, resp.Cost)
}

func TestIntercept_TransportFailureLeavesStateUntouched(t *testing.T) {
	chat := &fakeChat{err: fmt.Errorf("%w: dial tcp: refused", upstream.ErrTransport)}
	h := newHarness(t, chat, nil)

	_, err := h.p.Intercept(context.Background(), &Request{Body: chatBody("s1", "hi")})
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream.ErrTransport)

	assert.Zero(t, h.audit.Len())
	assert.Zero(t, h.deps.Savings.Micros())
	audit, ok := h.p.AuditSession("s1")
	require.True(t, ok)
	assert.Zero(t, audit.CumulativeCost)
	assert.Zero(t, audit.Interventions)
}

// =============================================================================
// QUERIES & CONCURRENCY
// =============================================================================

func TestStats(t *testing.T) {
	chat := &fakeChat{bodies: []string{completion("ok", 1, 1)}}
	h := newHarness(t, chat, nil)

	for i := 0; i < 3; i++ {
		h.send(t, "loopy", "again and again")
	}
	h.send(t, "calm", "one off")

	stats := h.p.Stats()
	assert.Equal(t, 2, stats.ActiveSessions)
	assert.Equal(t, 1, stats.TotalInterventions)
	assert.InDelta(t, 0.05, stats.TotalSavedUSD, 1e-9)
	assert.Equal(t, StatusHealthy, stats.Status)
	assert.Equal(t, map[monitoring.Reason]int{monitoring.ReasonFuzzyLoop: 1}, stats.InterventionsByReason)

	// two forwarded loopy turns and one calm one, 1+1 tokens each
	assert.InDelta(t, 3*0.00000075, stats.TotalSpendUSD, 1e-12)
	require.Len(t, stats.SpendByModel, 1)
	assert.Equal(t, "gpt-4o-mini", stats.SpendByModel[0].Model)
	assert.Equal(t, 3, stats.SpendByModel[0].RequestCount)

	_, ok := h.p.AuditSession("never-seen")
	assert.False(t, ok)
}

func TestIntercept_ConcurrentSessionsSavingsExact(t *testing.T) {
	chat := &fakeChat{bodies: []string{completion("ok", 1, 1)}}
	h := newHarness(t, chat, nil)

	const sessions = 20
	var blocked atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < 3; j++ {
				resp, err := h.p.Intercept(context.Background(), &Request{Body: chatBody(id, "the same words"), SessionID: id})
				if err == nil && resp.Intervention != "" {
					blocked.Add(1)
				}
			}
		}(fmt.Sprintf("s-%d", i))
	}
	wg.Wait()

	assert.Equal(t, int64(sessions), blocked.Load())
	assert.Equal(t, int64(sessions*50_000), h.deps.Savings.Micros())
	assert.Equal(t, sessions, h.audit.Len())
}
