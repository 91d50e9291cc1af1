package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/stream"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type websocketMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func speakMsg(text string) websocketMessage {
	return websocketMessage{Type: "Speak", Text: text}
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	closeMsg = websocketMessage{Type: "Close"}
)

type incoming struct {
	audio   []byte
	flushed bool
	err     error
}

type feedResult struct {
	flushes int
	err     error
}

// request owns one speak connection. The text feeder and the final close
// both write, so writes are serialized.
type request struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (r *request) send(msg websocketMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn.WriteJSON(msg)
}

// feed sends every sentence followed by a flush so audio for a sentence is
// produced as soon as the sentence is complete.
func (r *request) feed(text iter.Seq[string]) feedResult {
	flushes := 0
	for sentence := range texttospeech.Sentences(text) {
		if err := r.send(speakMsg(sentence)); err != nil {
			return feedResult{flushes: flushes, err: fmt.Errorf("failed to send text: %w", err)}
		}
		if err := r.send(flushMsg); err != nil {
			return feedResult{flushes: flushes, err: fmt.Errorf("failed to flush text: %w", err)}
		}
		flushes++
	}
	return feedResult{flushes: flushes}
}

func (c *TextToSpeechClient) Synthesize(ctx context.Context, text iter.Seq[string], opts ...texttospeech.SynthesisOption) stream.Sequence {
	options := texttospeech.ApplySynthesisOptions(opts...)
	voice := c.voice
	if options.Voice != "" {
		voice = Voice(options.Voice)
	}

	return func(yield func(stream.Fragment) bool) {
		ctx, span := tracer.Start(ctx, "synthesize speech")
		defer span.End()
		span.SetAttributes(attribute.String("request.voice", string(voice)))

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(stream.Error(err))
		}

		conn, err := c.connect(ctx, voice, options.EncodingInfo)
		if err != nil {
			fail(err)
			return
		}
		defer conn.Close()
		req := &request{conn: conn}

		quit := make(chan struct{})
		defer close(quit)

		messages := make(chan incoming)
		go readMessages(conn, messages, quit)

		fed := make(chan feedResult, 1)
		go func() { fed <- req.feed(text) }()

		flushed, expected := 0, -1
		for expected < 0 || flushed < expected {
			select {
			case <-ctx.Done():
				fail(ctx.Err())
				return

			case result := <-fed:
				if result.err != nil {
					fail(result.err)
					return
				}
				expected = result.flushes
				fed = nil

			case msg := <-messages:
				switch {
				case msg.err != nil:
					fail(msg.err)
					return
				case msg.flushed:
					flushed++
				default:
					if !yield(stream.AudioChunk(msg.audio, options.EncodingInfo.SampleRate)) {
						logger.DebugContext(ctx, "speech abandoned by consumer")
						return
					}
				}
			}
		}
		span.SetAttributes(attribute.Int("response.flushes", flushed))

		if err := req.send(closeMsg); err != nil {
			logger.DebugContext(ctx, "failed to close speak stream", "error", err)
		}
		yield(stream.End())
	}
}

func (c *TextToSpeechClient) connect(ctx context.Context, voice Voice, encodingInfo audio.EncodingInfo) (*websocket.Conn, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not set")
	}

	query := url.Values{}
	query.Set("encoding", encodingInfo.Format.Name())
	query.Set("sample_rate", strconv.Itoa(encodingInfo.SampleRate))
	query.Set("model", string(voice))
	query.Set("container", "none")

	speakURL, err := url.Parse(c.baseURL + "/v1/speak")
	if err != nil {
		return nil, fmt.Errorf("invalid deepgram url: %w", err)
	}
	speakURL.RawQuery = query.Encode()

	conn, _, err := c.dialer.DialContext(ctx, speakURL.String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

func readMessages(conn *websocket.Conn, messages chan<- incoming, quit <-chan struct{}) {
	deliver := func(msg incoming) bool {
		select {
		case messages <- msg:
			return true
		case <-quit:
			return false
		}
	}

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			deliver(incoming{err: fmt.Errorf("websocket read failed: %w", err)})
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if !deliver(incoming{audio: msg}) {
				return
			}
		case websocket.TextMessage:
			var parsedMsg struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				continue
			}
			switch parsedMsg.Type {
			case "Flushed":
				if !deliver(incoming{flushed: true}) {
					return
				}
			case "Error":
				deliver(incoming{err: fmt.Errorf("deepgram error: %s", parsedMsg.Description)})
				return
			}
		}
	}
}
