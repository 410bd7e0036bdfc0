package interceptor

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mandyss10/Sentinel/internal/adapters"
	"github.com/mandyss10/Sentinel/internal/monitoring"
	"github.com/mandyss10/Sentinel/internal/session"
	"github.com/mandyss10/Sentinel/internal/utils"
)

// Headers read and written by the pipeline.
const (
	HeaderSession      = "X-Sentinel-Session"
	HeaderIntervention = "X-Sentinel-Intervention"
	HeaderRequestID    = "X-Request-ID"
)

// DefaultSessionID is used when neither header nor payload names a session.
const DefaultSessionID = "default"

// MaxSnippetRunes bounds the audit snippet of a blocked prompt.
const MaxSnippetRunes = 120

// Request is one inbound chat completion.
type Request struct {
	Body      []byte
	Header    http.Header
	SessionID string // overrides header/payload resolution when set
	RequestID string // generated when empty
}

// inbound is a Request with its fields extracted once.
type inbound struct {
	body      []byte
	sessionID string
	requestID string
	model     string
	userText  string
	streaming bool
}

// ResolveSessionID picks the session: X-Sentinel-Session header, then the
// payload "user" field, then DefaultSessionID.
func ResolveSessionID(h http.Header, body []byte) string {
	if id := strings.TrimSpace(h.Get(HeaderSession)); id != "" {
		return id
	}
	if id := adapters.ExtractUser(body); id != "" {
		return id
	}
	return DefaultSessionID
}

func (p *Pipeline) parse(req *Request) *inbound {
	in := &inbound{
		body:      req.Body,
		sessionID: strings.TrimSpace(req.SessionID),
		requestID: req.RequestID,
		model:     adapters.ExtractModel(req.Body),
		userText:  adapters.ExtractLatestUserText(req.Body),
		streaming: adapters.IsStreaming(req.Body),
	}
	if in.sessionID == "" {
		in.sessionID = ResolveSessionID(req.Header, req.Body)
	}
	if in.requestID == "" {
		in.requestID = req.Header.Get(HeaderRequestID)
	}
	if in.requestID == "" {
		in.requestID = uuid.New().String()
	}
	return in
}

// checkLoops runs the pre-forward detectors and returns a blocked response
// when one of them trips.
func (p *Pipeline) checkLoops(ctx context.Context, in *inbound) *Response {
	if strings.TrimSpace(in.userText) == "" {
		return nil
	}

	emb := p.embed(ctx, in)

	var reason monitoring.Reason
	p.registry.With(in.sessionID, func(s *session.State) {
		switch {
		case emb != nil && s.CheckSemanticLoop(emb, p.policy.SemanticThreshold, p.policy.SemanticTurns):
			reason = monitoring.ReasonSemanticLoop
		case s.CheckFuzzyLoop(in.userText, p.policy.FuzzyThreshold, p.policy.FuzzyTurns):
			reason = monitoring.ReasonFuzzyLoop
		default:
			return
		}
		s.RecordIntervention()
	})
	if reason == "" {
		return nil
	}

	saving := p.loopSaving(in)
	p.record(in, reason, utils.Truncate(in.userText, MaxSnippetRunes), saving)
	p.metrics.RecordRequest(monitoring.OutcomeBlocked)

	log.Info().
		Str("session_id", in.sessionID).
		Str("request_id", in.requestID).
		Str("reason", string(reason)).
		Float64("saved_usd", saving).
		Msg("request blocked")

	return blockedResponse(in, reason)
}

// embed returns nil on any failure; loop detection then falls back to text.
func (p *Pipeline) embed(ctx context.Context, in *inbound) session.Embedding {
	if p.embedder == nil {
		return nil
	}
	v, err := p.embedder.Embed(ctx, in.userText)
	if err != nil || len(v) == 0 {
		p.metrics.RecordEmbeddingFailure()
		log.Debug().Err(err).Str("session_id", in.sessionID).Msg("embedding unavailable, using fuzzy detection")
		return nil
	}
	return v
}

// loopSaving is the larger of the nominal saving and the estimated cost of
// the prompt that was not sent.
func (p *Pipeline) loopSaving(in *inbound) float64 {
	saving := p.policy.NominalSavingUSD
	if p.estimator == nil {
		return saving
	}
	tokens := p.estimator.CountTokens(adapters.ExtractPromptText(in.body))
	return max(saving, p.pricer.Cost(in.model, tokens, 0))
}
