package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/clawinfra/stakeclaw/internal/session"
)

const (
	streamBuffer       = 16
	streamWriteTimeout = 10 * time.Second
)

// handleStream upgrades to a WebSocket and pushes the current snapshot plus
// every later transition. The client only reads. It subscribes before
// reading the current state so nothing is missed.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// The stream outlives the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.logger.Warn("session stream rejected", "origin", r.Header.Get("Origin"), "error", err)
		return
	}
	defer conn.CloseNow()

	updates := make(chan session.Snapshot, streamBuffer)
	unsubscribe := s.orch.Subscribe(func(snap session.Snapshot) {
		offerLatest(updates, snap)
	})
	defer unsubscribe()

	ctx := conn.CloseRead(r.Context())
	s.logger.Debug("session stream opened", "remote", r.RemoteAddr)

	if err := writeSnapshot(ctx, conn, s.orch.State()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			s.logger.Debug("session stream closed", "remote", r.RemoteAddr)
			return
		case snap := <-updates:
			if err := writeSnapshot(ctx, conn, snap); err != nil {
				s.logger.Debug("session stream write failed", "error", err)
				return
			}
		}
	}
}

// offerLatest queues snap, dropping the oldest queued snapshot when a slow
// reader has filled the buffer. Never blocks the notifying goroutine.
func offerLatest(ch chan session.Snapshot, snap session.Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, snap session.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, snap)
}
