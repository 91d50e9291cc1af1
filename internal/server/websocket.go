package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/speechtotext"
)

const (
	commandStart = "start"
	commandStop  = "stop"
	commandAudio = "audio"
)

// Command is a client to server websocket message. Binary messages are
// shorthand for an audio command with default encoding.
type Command struct {
	Type       string `json:"type"`
	Audio      string `json:"audio,omitempty"`
	Format     string `json:"format,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Language   string `json:"language,omitempty"`
}

type wsConn struct {
	server    *Server
	conn      *websocket.Conn
	sessionID string

	writeMu sync.Mutex

	// forwarding is closed once the events of the last admitted turn have
	// all been written.
	forwarding chan struct{}
}

func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	ws := &wsConn{server: s, conn: conn, sessionID: c.GetString("session_id")}
	ws.serve(ctx)

	cancel()
	ws.awaitForwarding()
}

func (ws *wsConn) serve(ctx context.Context) {
	for {
		messageType, data, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket closed unexpectedly", "session.id", ws.sessionID, "error", err)
			}
			return
		}

		var command Command
		switch messageType {
		case websocket.BinaryMessage:
			command = Command{Type: commandAudio}
		case websocket.TextMessage:
			if err := json.Unmarshal(data, &command); err != nil {
				ws.writeError(fmt.Errorf("invalid command: %w", err))
				continue
			}
			data = nil
		default:
			continue
		}

		if err := ws.handle(ctx, command, data); err != nil {
			ws.writeError(err)
		}
	}
}

func (ws *wsConn) handle(ctx context.Context, command Command, payload []byte) error {
	orchestrator := ws.server.orchestrator

	switch command.Type {
	case commandStart:
		turn, err := orchestrator.StartConversation(ctx, ws.sessionID)
		if err != nil {
			return err
		}
		ws.forward(turn)

	case commandAudio:
		if payload == nil {
			decoded, err := base64.StdEncoding.DecodeString(command.Audio)
			if err != nil {
				return fmt.Errorf("invalid audio payload: %w", err)
			}
			payload = decoded
		}
		turn, err := orchestrator.SubmitAudio(ctx, ws.sessionID, payload, command.transcriptionOptions()...)
		if err != nil {
			return err
		}
		ws.forward(turn)

	case commandStop:
		if err := orchestrator.Stop(ctx, ws.sessionID); err != nil {
			return err
		}
		ws.awaitForwarding()
		return ws.write(events.NewStateChange(string(orchestration.StateIdle)))

	default:
		return fmt.Errorf("unknown command %q", command.Type)
	}
	return nil
}

// forward writes the turn's events. The previous turn has settled by the
// time a new one is admitted; waiting for its writer keeps its last frames
// ahead of the new turn's.
func (ws *wsConn) forward(turn *orchestration.Turn) {
	ws.awaitForwarding()

	done := make(chan struct{})
	ws.forwarding = done
	go func() {
		defer close(done)
		for event := range turn.Events() {
			if err := ws.write(event); err != nil {
				logger.Debug("failed to write turn event", "turn.id", turn.ID(), "error", err)
				return
			}
		}
	}()
}

func (ws *wsConn) awaitForwarding() {
	if ws.forwarding != nil {
		<-ws.forwarding
	}
}

func (ws *wsConn) write(event events.Event) error {
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	return ws.conn.WriteJSON(events.Wrap(event))
}

func (ws *wsConn) writeError(err error) {
	event := events.NewError(orchestration.ErrorKindOf(err), err.Error())
	if writeErr := ws.write(event); writeErr != nil {
		logger.Debug("failed to write error frame", "session.id", ws.sessionID, "error", writeErr)
	}
}

func (c Command) transcriptionOptions() []speechtotext.TranscriptionOption {
	var opts []speechtotext.TranscriptionOption
	if format, ok := audio.ParseEncodingFormat(c.Format); ok {
		sampleRate := c.SampleRate
		if sampleRate <= 0 {
			sampleRate = audio.DefaultSampleRate
		}
		opts = append(opts, speechtotext.WithEncodingInfo(audio.EncodingInfo{SampleRate: sampleRate, Format: format}))
	}
	if c.Language != "" {
		opts = append(opts, speechtotext.WithLanguage(c.Language))
	}
	return opts
}
