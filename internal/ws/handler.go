package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/abluka/internal/hub"
	"github.com/DoyleJ11/abluka/internal/store"
	"github.com/DoyleJ11/abluka/internal/types"
)

const writeTimeout = 3 * time.Second

// Handler streams changes of the session named by ?code= until the client
// goes away or the session is deleted.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		subCtx, unsubscribe := context.WithCancel(context.Background())
		defer unsubscribe()

		changes, err := h.Subscribe(subCtx, code)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "subscribe failed", http.StatusInternalServerError)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		log := log.With(zap.String("code", code), zap.String("client", clientID))
		log.Debug("feed opened")

		// the feed is one-way; CloseRead answers pings and notices the client leaving
		ctx := conn.CloseRead(r.Context())

		for {
			select {
			case <-ctx.Done():
				log.Debug("feed closed by client")
				return

			case ch, ok := <-changes:
				if !ok {
					// dropped as a slow subscriber, or the hub stopped
					conn.Close(websocket.StatusGoingAway, "feed ended")
					return
				}

				msg := types.ServerMessage{Type: types.MsgSessionState, Record: &ch.Record}
				if ch.Deleted {
					msg.Type = types.MsgSessionDeleted
				}

				wctx, cancel := context.WithTimeout(ctx, writeTimeout)
				err := wsjson.Write(wctx, conn, msg)
				cancel()
				if err != nil {
					log.Debug("feed write failed", zap.Error(err))
					return
				}
				if ch.Deleted {
					conn.Close(websocket.StatusNormalClosure, "session deleted")
					return
				}
			}
		}
	}
}
