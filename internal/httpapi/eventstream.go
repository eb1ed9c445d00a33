package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// upgrader accepts connections from any origin; the admin surface already
// gates its own routes behind JWT, and the event stream itself is
// read-only.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEventsTail serves a bounded replay of the in-memory event buffer,
// the polling half of the "tail then subscribe" pattern.
func (s *Server) handleEventsTail(c *gin.Context) {
	afterSeq := uint64(0)
	if raw := c.Query("after_seq"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after_seq"})
			return
		}
		afterSeq = n
	}
	events := s.eventLog.Tail(afterSeq)
	c.JSON(http.StatusOK, gin.H{"events": events, "next_seq": s.eventLog.NextSeq()})
}

// handleEventsStream upgrades to a websocket, replays every event after
// the requested seq, then switches to the live subscription — adapted from
// a broadcast hub (many producers) to a single reader replaying one
// EventLog.
func (s *Server) handleEventsStream(c *gin.Context) {
	afterSeq := uint64(0)
	if raw := c.Query("after_seq"); raw != "" {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			afterSeq = n
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithContext(c.Request.Context()).WithError(err).Warn("event stream upgrade failed")
		return
	}
	defer conn.Close()

	live, unsubscribe := s.eventLog.Subscribe()
	defer unsubscribe()

	for _, ev := range s.eventLog.Tail(afterSeq) {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}

	// Drain keepalive/close frames from the client concurrently so the
	// connection's read deadline logic (handled by gorilla internally)
	// notices a closed socket promptly.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-live:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
