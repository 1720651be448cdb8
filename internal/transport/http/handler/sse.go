package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// eventStream writes named server-sent events. Headers go out with the first
// event so errors raised before any output can still use the JSON envelope.
type eventStream struct {
	c       *gin.Context
	started bool
}

func newEventStream(c *gin.Context) *eventStream {
	return &eventStream{c: c}
}

func (s *eventStream) start() {
	if s.started {
		return
	}
	s.started = true
	s.c.Header("Content-Type", "text/event-stream")
	s.c.Header("Cache-Control", "no-cache")
	s.c.Header("Connection", "keep-alive")
	s.c.Header("X-Accel-Buffering", "no")
	s.c.Status(http.StatusOK)
}

func (s *eventStream) send(event string, data any) error {
	s.start()
	s.c.SSEvent(event, data)
	s.c.Writer.Flush()
	return s.c.Request.Context().Err()
}

// chunk is handed to the orchestrator; a gone client stops the stream.
func (s *eventStream) chunk(delta string) error {
	return s.send("chunk", gin.H{"text": delta})
}

func (s *eventStream) fail(message string) {
	_ = s.send("error", gin.H{"message": message})
}
