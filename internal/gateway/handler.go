// HTTP request handling for the chat completion proxy.
//
// DESIGN: handleProxy reads the body once, hands it to the pipeline and
// writes back whatever the pipeline returns. Error mapping:
//   - unreadable or non-JSON body   400
//   - unknown X-Sentinel-Provider   400
//   - upstream transport failure    502
package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/mandyss10/Sentinel/internal/config"
	"github.com/mandyss10/Sentinel/internal/interceptor"
	"github.com/mandyss10/Sentinel/internal/upstream"
)

// hopHeaders are never copied from the upstream response.
var hopHeaders = map[string]bool{
	"Connection":        true,
	"Content-Length":    true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
}

// writeError writes a JSON error response.
func (g *Gateway) writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"message": msg, "type": "sentinel_error"},
	})
}

// writeJSON writes v with status 200.
func (g *Gateway) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("writing response failed")
	}
}

// handleHealth returns gateway health status.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}
	if uptime := g.metrics.Uptime(); uptime != "" {
		health["uptime"] = uptime
	}
	g.writeJSON(w, health)
}

// handleProxy runs one chat completion through the interception pipeline.
func (g *Gateway) handleProxy(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := g.getRequestID(r)

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		g.writeError(w, "failed to read request", http.StatusBadRequest)
		return
	}
	if !gjson.ValidBytes(body) {
		g.writeError(w, "request body must be JSON", http.StatusBadRequest)
		return
	}

	resp, err := g.pipeline.Intercept(r.Context(), &interceptor.Request{
		Body:      body,
		Header:    r.Header,
		RequestID: requestID,
	})
	if err != nil {
		if errors.Is(err, upstream.ErrUnknownProvider) {
			g.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Str("request_id", requestID).Msg("upstream request failed")
		g.writeError(w, "upstream request failed", http.StatusBadGateway)
		return
	}

	copyHeaders(w, resp.Header)
	w.Header().Set(interceptor.HeaderRequestID, requestID)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)

	log.Debug().
		Str("request_id", requestID).
		Str("session_id", resp.SessionID).
		Int("status", resp.StatusCode).
		Str("intervention", string(resp.Intervention)).
		Dur("duration", time.Since(startTime)).
		Msg("request completed")
}

// getRequestID gets or generates a request ID.
func (g *Gateway) getRequestID(r *http.Request) string {
	if id := r.Header.Get(interceptor.HeaderRequestID); id != "" {
		return id
	}
	return uuid.New().String()
}

// copyHeaders copies HTTP headers from source to destination.
func copyHeaders(w http.ResponseWriter, src http.Header) {
	for k, v := range src {
		if hopHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		w.Header()[k] = v
	}
}
