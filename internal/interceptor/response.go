package interceptor

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/mandyss10/Sentinel/internal/adapters"
	"github.com/mandyss10/Sentinel/internal/monitoring"
	"github.com/mandyss10/Sentinel/internal/session"
	"github.com/mandyss10/Sentinel/internal/upstream"
	"github.com/mandyss10/Sentinel/internal/utils"
)

// Response is what the proxy returns to the caller.
type Response struct {
	StatusCode   int
	Header       http.Header
	Body         []byte
	SessionID    string
	Intervention monitoring.Reason // empty when the upstream body was relayed as-is
	Cost         float64           // committed turn cost in USD
}

// blockedResponse builds a chat.completion carrying the loop notice.
func blockedResponse(in *inbound, reason monitoring.Reason) *Response {
	notice := LoopNotice
	if reason == monitoring.ReasonFuzzyLoop {
		notice = FuzzyNotice
	}
	model := in.model
	if model == "" {
		model = "sentinel"
	}

	body, err := utils.MarshalNoEscape(map[string]any{
		"id":      "chatcmpl-sentinel-" + uuid.New().String()[:8],
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": notice,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     0,
			"completion_tokens": 0,
			"total_tokens":      0,
		},
	})
	if err != nil {
		// Only reachable if the map above stops being JSON-encodable.
		body = []byte(`{"object":"chat.completion","choices":[]}`)
	}

	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &Response{
		StatusCode:   http.StatusOK,
		Header:       withSentinelHeaders(h, in.sessionID, reason),
		Body:         body,
		SessionID:    in.sessionID,
		Intervention: reason,
	}
}

// inspect runs the leak check and cost accounting on an upstream response.
func (p *Pipeline) inspect(in *inbound, up *upstream.Response) *Response {
	resp := &Response{
		StatusCode: up.StatusCode,
		Header:     withSentinelHeaders(up.Header, in.sessionID, ""),
		Body:       up.Body,
		SessionID:  in.sessionID,
	}

	if up.StatusCode < 200 || up.StatusCode >= 300 {
		p.metrics.RecordRequest(monitoring.OutcomeForwarded)
		return resp
	}

	// stream: true responses arrive fully buffered as SSE; they get the same
	// leak and cost checks as a single JSON completion.
	var (
		content  string
		usage    adapters.UsageInfo
		streamed bool
	)
	switch {
	case gjson.ValidBytes(up.Body):
		content = adapters.ExtractContent(up.Body)
		usage = adapters.ExtractUsage(up.Body)
	case adapters.IsEventStream(up.Body):
		streamed = true
		content = adapters.ExtractStreamContent(up.Body)
		usage = adapters.ExtractStreamUsage(up.Body)
	default:
		p.metrics.RecordRequest(monitoring.OutcomeForwarded)
		return resp
	}

	if containsLeak(content, p.policy.LeakMarkers) {
		p.rewrite(resp, in, streamed, monitoring.ReasonDataLeak, LeakNotice)
		p.registry.With(in.sessionID, func(s *session.State) { s.RecordIntervention() })
		p.record(in, monitoring.ReasonDataLeak, RedactedSnippet, 0)
		return resp
	}

	cost := p.pricer.Cost(in.model, usage.InputTokens, usage.OutputTokens)
	resp.Cost = cost

	var throttled bool
	p.registry.With(in.sessionID, func(s *session.State) {
		throttled = s.CheckEconomicThrottle(cost, p.policy.Throttle)
		if throttled {
			s.RecordIntervention()
		}
		s.CommitCost(cost)
	})
	if p.spend != nil {
		p.spend.RecordCost(in.model, cost)
	}

	if !throttled {
		p.metrics.RecordRequest(monitoring.OutcomeForwarded)
		return resp
	}

	p.rewrite(resp, in, streamed, monitoring.ReasonEconomicThrottle, ThrottleNotice)
	p.record(in, monitoring.ReasonEconomicThrottle, utils.Truncate(in.userText, MaxSnippetRunes), p.policy.NominalSavingUSD)
	return resp
}

// rewrite substitutes notice for the completion content. A streamed body is
// replaced by a minimal SSE stream carrying the notice. If a JSON body cannot
// be patched the upstream body is kept and only the headers mark the
// intervention.
func (p *Pipeline) rewrite(resp *Response, in *inbound, streamed bool, reason monitoring.Reason, notice string) {
	if streamed {
		resp.Body = adapters.StreamContent(resp.Body, notice)
		resp.Header.Del("Content-Length")
	} else if body, err := adapters.ApplyContent(resp.Body, notice); err != nil {
		log.Warn().Err(err).Str("session_id", in.sessionID).Msg("could not rewrite response body")
	} else {
		resp.Body = body
		resp.Header.Del("Content-Length")
	}
	resp.Intervention = reason
	resp.Header.Set(HeaderIntervention, string(reason))
	p.metrics.RecordRequest(monitoring.OutcomeRewritten)

	log.Info().
		Str("session_id", in.sessionID).
		Str("request_id", in.requestID).
		Str("reason", string(reason)).
		Msg("response rewritten")
}
