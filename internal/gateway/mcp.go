// Package gateway - mcp.go serves the JSON-RPC 2.0 control plane.
//
// DESIGN: Every well-formed request gets a result, never a JSON-RPC error
// object; failures such as an unknown method or session are reported as
// {"error": "..."} inside result. Notifications (no id) get 202 and no body.
package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/mandyss10/Sentinel/internal/config"
	"github.com/mandyss10/Sentinel/internal/interceptor"
)

// Control-plane methods.
const (
	MethodStats        = "get_sentinel_stats"
	MethodAuditSession = "audit_session"
	MethodRecentLogs   = "recent_logs"
)

type rpcError struct {
	Error string `json:"error"`
}

func (g *Gateway) handleMCP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxControlBodySize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		g.writeError(w, "failed to read request", http.StatusBadRequest)
		return
	}

	msg, err := jsonrpc.DecodeMessage(data)
	if err != nil {
		g.writeError(w, "invalid JSON-RPC message: "+err.Error(), http.StatusBadRequest)
		return
	}
	req, ok := msg.(*jsonrpc.Request)
	if !ok {
		g.writeError(w, "expected a JSON-RPC request", http.StatusBadRequest)
		return
	}

	result := g.dispatch(req)
	if !req.ID.IsValid() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		g.writeError(w, "encoding result failed", http.StatusInternalServerError)
		return
	}
	out, err := jsonrpc.EncodeMessage(&jsonrpc.Response{ID: req.ID, Result: raw})
	if err != nil {
		g.writeError(w, "encoding response failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

func (g *Gateway) dispatch(req *jsonrpc.Request) any {
	log.Debug().Str("method", req.Method).Msg("control plane call")

	switch req.Method {
	case MethodStats:
		return g.pipeline.Stats()
	case MethodAuditSession:
		id := gjson.GetBytes(req.Params, "session_id").String()
		if id == "" {
			id = interceptor.DefaultSessionID
		}
		audit, ok := g.pipeline.AuditSession(id)
		if !ok {
			return rpcError{Error: "Session not found"}
		}
		return audit
	case MethodRecentLogs:
		return LogsResponse{Entries: g.pipeline.RecentLogs()}
	default:
		return rpcError{Error: "Method not found"}
	}
}
