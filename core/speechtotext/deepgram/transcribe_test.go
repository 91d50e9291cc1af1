package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/stream"
)

func newListenServer(t *testing.T, respond func(conn *websocket.Conn, received []byte)) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/listen" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Token key" {
			t.Errorf("unexpected authorization %q", got)
		}
		if got := r.URL.Query().Get("encoding"); got != "linear16" {
			t.Errorf("expected linear16 encoding, got %q", got)
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var received []byte
		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.BinaryMessage {
				received = append(received, msg...)
				continue
			}
			if strings.Contains(string(msg), "CloseStream") {
				break
			}
		}
		respond(conn, received)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func results(transcript string, isFinal bool) string {
	final := "false"
	if isFinal {
		final = "true"
	}
	return `{"type":"Results","is_final":` + final + `,"channel":{"alternatives":[{"transcript":"` + transcript + `"}]}}`
}

func TestTranscribeJoinsFinalResults(t *testing.T) {
	var uploaded int
	server := newListenServer(t, func(conn *websocket.Conn, received []byte) {
		uploaded = len(received)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(results("hel", false)))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(results("hello", true)))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(results("world", true)))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Metadata"}`))
	})

	client := NewTranscriptionClient("key", WithBaseURL(wsURL(server)))
	payload := make([]byte, 3*frameSize+10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	text, err := stream.CollectText(client.Transcribe(ctx, payload,
		speechtotext.WithEncodingInfo(audio.GetDefaultEncodingInfo())))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("expected %q, got %q", "hello world", text)
	}
	if uploaded != len(payload) {
		t.Fatalf("expected %d uploaded bytes, got %d", len(payload), uploaded)
	}
}

func TestTranscribeTreatsNormalCloseAsEnd(t *testing.T) {
	server := newListenServer(t, func(conn *websocket.Conn, _ []byte) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(results("bye", true)))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	client := NewTranscriptionClient("key", WithBaseURL(wsURL(server)))

	var last stream.Fragment
	for fragment := range client.Transcribe(context.Background(), []byte{0, 0}) {
		last = fragment
	}
	if last.Kind != stream.KindEnd {
		t.Fatalf("expected end fragment, got %q (%v)", last.Kind, last.Err)
	}
}

func TestTranscribeWithoutAPIKeyFails(t *testing.T) {
	client := NewTranscriptionClient("")

	_, err := stream.CollectText(client.Transcribe(context.Background(), []byte{0}))
	if err == nil {
		t.Fatalf("expected missing api key error")
	}
}

func TestEncodingParamsRejectUnsupportedRates(t *testing.T) {
	if _, err := encodingParams(audio.EncodingInfo{SampleRate: 11025, Format: audio.EncodingLinear16}); err == nil {
		t.Fatalf("expected unsupported rate to be rejected")
	}
	if _, err := encodingParams(audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingMulaw}); err == nil {
		t.Fatalf("expected mulaw at 16kHz to be rejected")
	}
	params, err := encodingParams(audio.EncodingInfo{Format: audio.EncodingWebM})
	if err != nil || len(params) != 0 {
		t.Fatalf("expected container formats to need no params, got %v, %v", params, err)
	}
}

func TestParseMessageReportsUpstreamErrors(t *testing.T) {
	_, _, err := parseMessage([]byte(`{"type":"Error","description":"bad audio"}`))
	if err == nil || !strings.Contains(err.Error(), "bad audio") {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
