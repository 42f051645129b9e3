package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loomworks/loomline/internal/actor"
	"github.com/loomworks/loomline/internal/events"
)

const sseHeartbeatInterval = 15 * time.Second

func (s *Server) StreamOrderEvents(c *gin.Context) {
	id, ok := parseEntityID(c)
	if !ok {
		return
	}
	s.streamEvents(c, events.ChannelOrderStatusChanged, int64(id))
}

func (s *Server) StreamSampleEvents(c *gin.Context) {
	id, ok := parseEntityID(c)
	if !ok {
		return
	}
	s.streamEvents(c, events.ChannelSampleStatusChanged, int64(id))
}

func (s *Server) StreamMyOrderEvents(c *gin.Context) {
	act, ok := actor.FromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	s.streamEvents(c, events.ChannelOrderUserUpdates, int64(act.ID))
}

func (s *Server) StreamMySampleEvents(c *gin.Context) {
	act, ok := actor.FromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	s.streamEvents(c, events.ChannelSampleUserUpdates, int64(act.ID))
}

// streamEvents holds the SSE connection open and relays hub events until the
// client disconnects. Delivery starts at subscription time; there is no replay
// of earlier events.
func (s *Server) streamEvents(c *gin.Context, channel string, key int64) {
	if s.hub == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	subscription, err := s.hub.Subscribe(channel, key)
	if err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	defer subscription.Close()

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-subscription.Events():
			if !open {
				return
			}
			if err := writeStatusEvent(writer, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeStatusEvent(w io.Writer, event events.StatusEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\ndata: %s\n\n", event.ID, data)
	return err
}
