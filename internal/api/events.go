package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/exam-shuffler/internal/session"
)

const eventWriteTimeout = 5 * time.Second

// handleEvents streams the session's progress events over a websocket. The
// first message is a snapshot of the session state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, r, http.StatusNotFound, "not_found", "Event stream is disabled.")
		return
	}
	id := sessionID(r)
	sess, err := s.manager.Get(r.Context(), id)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.origins),
	})
	if err != nil {
		slog.Warn("websocket accept failed", "session_id", id, "error", err)
		return
	}
	defer conn.CloseNow()

	events, unsubscribe := s.hub.Subscribe(id)
	defer unsubscribe()

	// The client only listens; CloseRead handles its close frame.
	ctx := conn.CloseRead(r.Context())

	snapshot := session.Event{
		SessionID: id,
		Type:      session.EventStateChanged,
		Data: map[string]any{
			"state":    string(sess.State),
			"progress": sess.Progress,
		},
		CreatedAt: time.Now(),
	}
	if err := writeEvent(ctx, conn, snapshot); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case e, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "")
				return
			}
			if err := writeEvent(ctx, conn, e); err != nil {
				slog.Debug("websocket write failed", "session_id", id, "error", err)
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, e session.Event) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}

// originPatterns turns allowed origins into host patterns for the websocket
// origin check.
func originPatterns(origins []string) []string {
	var patterns []string
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return patterns
}
