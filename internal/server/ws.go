package server

import (
	"context"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"net/http"

	"github.com/indiatrader/core/internal/events"
)

const quoteWriteTimeout = 10 * time.Second

// handleQuotesWS serves GET /api/quotes, bridging the fan-out quote bus to
// one websocket connection per client.
func (s *Server) handleQuotesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	updates, unsubscribe := s.core.Bus.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "client disconnected")
			return
		case ev, ok := <-updates:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "bus closed")
				return
			}
			if err := s.writeQuote(ctx, conn, ev); err != nil {
				s.log.Debug().Err(err).Msg("websocket write failed, closing")
				return
			}
		}
	}
}

func (s *Server) writeQuote(ctx context.Context, conn *websocket.Conn, ev events.QuoteEvent) error {
	writeCtx, cancel := context.WithTimeout(ctx, quoteWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, ev)
}
