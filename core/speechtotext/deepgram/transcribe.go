package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/stream"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	typeMetadataResponse = "Metadata"
	typeErrorResponse    = "Error"
)

func (c *TranscriptionClient) Transcribe(ctx context.Context, payload []byte, opts ...speechtotext.TranscriptionOption) stream.Sequence {
	options := speechtotext.ApplyTranscriptionOptions(opts...)
	if options.Language == "" {
		options.Language = c.language
	}

	return func(yield func(stream.Fragment) bool) {
		ctx, span := tracer.Start(ctx, "transcribe utterance")
		defer span.End()
		span.SetAttributes(
			attribute.String("request.model", c.model),
			attribute.Int("request.audio_bytes", len(payload)),
		)

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(stream.Error(err))
		}

		conn, err := c.connect(ctx, options)
		if err != nil {
			fail(err)
			return
		}
		defer conn.Close()

		stopHook := make(chan struct{})
		defer close(stopHook)
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-stopHook:
			}
		}()

		writeErr := make(chan error, 1)
		go func() { writeErr <- sendUtterance(conn, payload) }()

		first := true
		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					fail(ctx.Err())
					return
				}
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					break
				}
				fail(fmt.Errorf("failed to read deepgram message: %w", err))
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}

			transcript, done, err := parseMessage(msg)
			if err != nil {
				fail(err)
				return
			}
			if transcript != "" {
				if !first {
					transcript = " " + transcript
				}
				first = false
				if !yield(stream.TextDelta(transcript)) {
					logger.DebugContext(ctx, "transcription abandoned by consumer")
					return
				}
			}
			if done {
				break
			}
		}

		select {
		case err := <-writeErr:
			if err != nil {
				fail(err)
				return
			}
		default:
		}
		yield(stream.End())
	}
}

func (c *TranscriptionClient) connect(ctx context.Context, options speechtotext.TranscriptionOptions) (*websocket.Conn, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not set")
	}

	query, err := encodingParams(options.EncodingInfo)
	if err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}
	query.Set("model", c.model)
	query.Set("language", options.Language)
	query.Set("smart_format", "true")
	query.Set("punctuate", "true")

	listenURL, err := url.Parse(c.baseURL + "/v1/listen")
	if err != nil {
		return nil, fmt.Errorf("invalid deepgram url: %w", err)
	}
	listenURL.RawQuery = query.Encode()

	conn, _, err := c.dialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

// sendUtterance is the only writer on conn.
func sendUtterance(conn *websocket.Conn, payload []byte) error {
	for start := 0; start < len(payload); start += frameSize {
		end := min(start+frameSize, len(payload))
		if err := conn.WriteMessage(websocket.BinaryMessage, payload[start:end]); err != nil {
			return fmt.Errorf("failed to write to deepgram client: %w", err)
		}
	}

	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}
	return nil
}

// parseMessage extracts finalized transcript text. done is set once the
// upstream reports that all submitted audio was processed.
func parseMessage(msg []byte) (transcript string, done bool, err error) {
	var parsedMsg struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		return "", false, fmt.Errorf("failed to unmarshal deepgram message: %w", err)
	}

	switch parsedMsg.Type {
	case string(api.TypeMessageResponse):
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			return "", false, fmt.Errorf("failed to unmarshal deepgram results: %w", err)
		}
		if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
			return "", false, nil
		}
		return strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript), false, nil

	case typeMetadataResponse:
		return "", true, nil

	case typeErrorResponse:
		return "", false, errors.New("deepgram error: " + parsedMsg.Description)
	}

	return "", false, nil
}
