// Package interceptor decides, per chat completion, whether to forward,
// block or rewrite.
//
// DESIGN: Intercept runs three phases in order and stops at the first that
// intervenes:
//
//	pre-forward  semantic loop, then fuzzy loop  -> synthetic blocked response
//	response     leak denylist on the completion  -> redacted content
//	             (JSON or buffered SSE)
//	accounting   economic throttle before commit  -> throttle notice
//
// Embedding and upstream calls happen outside any lock. Session state is
// mutated inside registry.With only, so an upstream transport failure leaves
// the session, audit log and savings counter untouched.
package interceptor

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mandyss10/Sentinel/internal/adapters"
	"github.com/mandyss10/Sentinel/internal/config"
	"github.com/mandyss10/Sentinel/internal/costcontrol"
	"github.com/mandyss10/Sentinel/internal/monitoring"
	"github.com/mandyss10/Sentinel/internal/session"
	"github.com/mandyss10/Sentinel/internal/upstream"
)

// Embedder turns a user utterance into a unit vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChatClient forwards a chat completion upstream.
type ChatClient interface {
	Complete(ctx context.Context, req *upstream.Request) (*upstream.Response, error)
}

// TokenCounter estimates prompt tokens for requests that were never forwarded.
type TokenCounter interface {
	CountTokens(text string) int
}

// Policy holds the detector and throttle parameters.
type Policy struct {
	SemanticThreshold float64
	SemanticTurns     int
	FuzzyThreshold    float64
	FuzzyTurns        int
	Throttle          session.ThrottlePolicy
	LeakMarkers       []string
	NominalSavingUSD  float64
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{
		SemanticThreshold: config.DefaultSemanticThreshold,
		SemanticTurns:     config.DefaultSemanticTurns,
		FuzzyThreshold:    config.DefaultFuzzyThreshold,
		FuzzyTurns:        config.DefaultFuzzyTurns,
		Throttle: session.ThrottlePolicy{
			CeilingUSD:      config.DefaultCeilingUSD,
			SpikeMultiplier: config.DefaultSpikeMultiplier,
			SpikeFloorUSD:   config.DefaultSpikeFloorUSD,
		},
		LeakMarkers:      append([]string(nil), config.DefaultLeakMarkers...),
		NominalSavingUSD: config.DefaultNominalSavingUSD,
	}
}

// PolicyFromConfig maps the YAML policy section onto a Policy.
func PolicyFromConfig(c config.PolicyConfig) Policy {
	return Policy{
		SemanticThreshold: c.Semantic.Threshold,
		SemanticTurns:     c.Semantic.Turns,
		FuzzyThreshold:    c.Fuzzy.Threshold,
		FuzzyTurns:        c.Fuzzy.Turns,
		Throttle:          c.Throttle,
		LeakMarkers:       append([]string(nil), c.LeakMarkers...),
		NominalSavingUSD:  c.NominalSavingUSD,
	}
}

// Deps are the shared components a Pipeline works on. Registry, Audit,
// Savings, Chat and Pricer are required.
type Deps struct {
	Registry  *session.Registry
	Audit     *monitoring.AuditLog
	Savings   *monitoring.SavingsCounter
	Chat      ChatClient
	Pricer    *costcontrol.Pricer
	Policy    Policy
	Embedder  Embedder             // nil: fuzzy detection only
	Estimator TokenCounter         // nil: loop savings use the nominal amount
	Metrics   *monitoring.Metrics  // nil: no metrics
	Spend     *costcontrol.Tracker // nil: no global spend tracking
}

// Pipeline is the interception decision engine. Safe for concurrent use.
type Pipeline struct {
	registry  *session.Registry
	audit     *monitoring.AuditLog
	savings   *monitoring.SavingsCounter
	chat      ChatClient
	pricer    *costcontrol.Pricer
	policy    Policy
	embedder  Embedder
	estimator TokenCounter
	metrics   *monitoring.Metrics
	spend     *costcontrol.Tracker
}

// New validates deps and builds a Pipeline.
func New(d Deps) (*Pipeline, error) {
	var missing []error
	if d.Registry == nil {
		missing = append(missing, errors.New("registry"))
	}
	if d.Audit == nil {
		missing = append(missing, errors.New("audit log"))
	}
	if d.Savings == nil {
		missing = append(missing, errors.New("savings counter"))
	}
	if d.Chat == nil {
		missing = append(missing, errors.New("chat client"))
	}
	if d.Pricer == nil {
		missing = append(missing, errors.New("pricer"))
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("interceptor: missing dependencies: %w", errors.Join(missing...))
	}

	return &Pipeline{
		registry:  d.Registry,
		audit:     d.Audit,
		savings:   d.Savings,
		chat:      d.Chat,
		pricer:    d.Pricer,
		policy:    d.Policy,
		embedder:  d.Embedder,
		estimator: d.Estimator,
		metrics:   d.Metrics,
		spend:     d.Spend,
	}, nil
}

// Intercept processes one chat completion request.
//
// The returned error is non-nil only when no upstream response was obtained;
// it wraps the ChatClient's error (upstream.ErrTransport or
// upstream.ErrUnknownProvider).
func (p *Pipeline) Intercept(ctx context.Context, req *Request) (*Response, error) {
	in := p.parse(req)

	if blocked := p.checkLoops(ctx, in); blocked != nil {
		return blocked, nil
	}

	body := req.Body
	if in.streaming {
		body = adapters.WithStreamUsage(body)
	}
	upResp, err := p.chat.Complete(ctx, &upstream.Request{
		Body:   body,
		Header: req.Header,
		Model:  in.model,
	})
	if err != nil {
		p.metrics.RecordRequest(monitoring.OutcomeUpstreamError)
		return nil, fmt.Errorf("forwarding session %s: %w", in.sessionID, err)
	}
	p.metrics.ObserveUpstream(upResp.Provider, upResp.Latency)

	return p.inspect(in, upResp), nil
}

// record appends an audit entry, adds savings and bumps metrics.
// It is the only place audit entries are written.
func (p *Pipeline) record(in *inbound, reason monitoring.Reason, snippet string, savingsUSD float64) monitoring.InterventionEntry {
	if savingsUSD < 0 {
		savingsUSD = 0
	}
	entry := p.audit.Append(monitoring.InterventionEntry{
		SessionID:  in.sessionID,
		RequestID:  in.requestID,
		Model:      in.model,
		Reason:     reason,
		Snippet:    snippet,
		SavingsUSD: savingsUSD,
	})
	p.savings.Add(savingsUSD)
	p.metrics.RecordIntervention(reason)
	return entry
}

func withSentinelHeaders(h http.Header, sessionID string, reason monitoring.Reason) http.Header {
	out := h.Clone()
	if out == nil {
		out = make(http.Header)
	}
	out.Set(HeaderSession, sessionID)
	if reason != "" {
		out.Set(HeaderIntervention, string(reason))
	}
	return out
}
