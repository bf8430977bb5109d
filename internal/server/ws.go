package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/quarryhq/quarry/internal/model"
)

// handleStream upgrades the connection and streams the session's status
// events. The subscriber is caught up with the current status and document
// first, then receives live events until the client disconnects or the
// session closes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctl, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		s.httpError(w, http.StatusNotFound, "session not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed",
			zap.String("session_id", ctl.ID),
			zap.Error(err))
		return
	}
	defer conn.Close()

	events := ctl.Subscribe()
	defer ctl.Unsubscribe(events)

	if err := conn.WriteJSON(ctl.StatusEvent()); err != nil {
		return
	}
	doc := ctl.Document()
	if err := conn.WriteJSON(model.Event{Type: model.EventDocument, Document: &doc}); err != nil {
		return
	}

	// Reads only to detect the client going away.
	done := make(chan struct{})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(done)
				return
			}
		}
	}()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
