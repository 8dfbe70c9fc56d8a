package sse

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Event is one named server-sent event. Data is JSON encoded.
type Event struct {
	Name string
	Data any
}

// Stream writes events in the form:
//
//	event: <name>
//	data: <json>
//
// until ch is closed or the client goes away, then finishes with:
//
//	data: [DONE]
func Stream(c *gin.Context, ch <-chan Event) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	done := c.Request.Context().Done()

	for {
		select {
		case <-done:
			return
		case ev, open := <-ch:
			if !open {
				_, _ = c.Writer.Write([]byte("data: [DONE]\n\n"))
				flusher.Flush()
				return
			}
			if err := write(c.Writer, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func write(w gin.ResponseWriter, ev Event) error {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	var b strings.Builder
	if ev.Name != "" {
		b.WriteString("event: " + ev.Name + "\n")
	}
	// JSON has no raw newlines, so a single data line is enough.
	b.WriteString("data: " + string(payload) + "\n\n")
	_, err = w.Write([]byte(b.String()))
	return err
}
