package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/events"
)

// streamTurn forwards the turn's events as server-sent events. A client that
// goes away abandons the stream, which cancels the turn.
func streamTurn(c *gin.Context, turn *orchestration.Turn) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	for event := range turn.Events() {
		if err := writeSSE(c.Writer, event); err != nil {
			logger.Debug("client went away mid-turn", "turn.id", turn.ID(), "error", err)
			return
		}
		c.Writer.Flush()
	}
}

// writeSSE writes a single event frame.
func writeSSE(w io.Writer, event events.Event) error {
	data, err := json.Marshal(event.Payload())
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Kind(), err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind(), data)
	return err
}
