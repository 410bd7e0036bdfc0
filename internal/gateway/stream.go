package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
)

const (
	streamBuffer       = 16
	streamWriteTimeout = 5 * time.Second
)

// handleAuditStream pushes every new audit entry to a websocket client as a
// JSON text message. A client that falls behind by more than streamBuffer
// entries misses the overflow.
func (g *Gateway) handleAuditStream(w http.ResponseWriter, r *http.Request) {
	g.streams.Add(1)
	defer g.streams.Done()

	// Subscribe before the handshake completes so no entry appended after
	// the client connects is missed.
	entries, cancel := g.pipeline.Audit().Subscribe(streamBuffer)
	defer cancel()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket accept failed")
		return
	}

	// The feed is one-way; CloseRead handles control frames and cancels
	// ctx when the client goes away.
	ctx := conn.CloseRead(context.Background())

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.closing:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case entry, ok := <-entries:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			data, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			writeCtx, done := context.WithTimeout(ctx, streamWriteTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			done()
			if err != nil {
				log.Debug().Err(err).Msg("audit stream write failed")
				_ = conn.CloseNow()
				return
			}
		}
	}
}
