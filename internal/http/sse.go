package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/switchboard/internal/tracker"
)

// handleStream streams session updates via Server-Sent Events.
//
// With ?session=<id> only that session's updates are sent, starting with a
// "snapshot" event carrying its current state, and the stream closes once
// the session completes, fails or is removed. Without it every session's
// updates are streamed until the client disconnects.
//
//	GET /api/v1/stream?session=abc
//
//	event: snapshot
//	data: {"kind":"snapshot","session_id":"abc","state":{...}}
//
//	event: participant_updated
//	data: {"kind":"participant_updated","session_id":"abc","state":{...}}
func (s *Server) handleStream(c echo.Context) error {
	sessionID := c.QueryParam("session")

	// Subscribe before reading the snapshot so no update falls between them.
	sub := s.deps.Driver.Subscribe(sessionID)
	defer s.deps.Driver.Unsubscribe(sub)

	var snapshot *tracker.SessionState
	if sessionID != "" {
		st, err := s.deps.Driver.GetSessionState(sessionID)
		if err != nil {
			if errors.Is(err, tracker.ErrSessionNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "session not found")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
		snapshot = &st
	}

	resp := c.Response()
	resp.Header().Set("Content-Type", "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	resp.WriteHeader(http.StatusOK)

	if snapshot != nil {
		if err := s.writeSnapshot(c, *snapshot); err != nil {
			return nil
		}
		if snapshot.Terminal() {
			return nil
		}
	} else {
		resp.Flush()
	}

	// Heartbeat ticker to prevent proxy timeouts
	ticker := time.NewTicker(s.config.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case u, ok := <-sub.Updates():
			if !ok {
				// Dropped for falling behind.
				return nil
			}
			if err := writeEvent(resp, string(u.Kind), u); err != nil {
				s.logger.Debug("sse write failed", zap.Error(err))
				return nil
			}
			if sessionID != "" && closesStream(u.Kind) {
				return nil
			}

		case <-ticker.C:
			if _, err := fmt.Fprint(resp, ": heartbeat\n\n"); err != nil {
				return nil
			}
			resp.Flush()

		case <-c.Request().Context().Done():
			// Client disconnected
			return nil
		}
	}
}

func (s *Server) writeSnapshot(c echo.Context, st tracker.SessionState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return writeEvent(c.Response(), "snapshot", tracker.Update{
		Kind:      "snapshot",
		SessionID: st.ID,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

func writeEvent(resp *echo.Response, event string, u tracker.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	resp.Flush()
	return nil
}

func closesStream(kind tracker.UpdateKind) bool {
	switch kind {
	case tracker.KindSessionCompleted, tracker.KindSessionFailed, tracker.KindSessionRemoved:
		return true
	}
	return false
}
