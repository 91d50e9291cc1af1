// Package deepgram transcribes utterances over Deepgram's live listen
// websocket.
package deepgram

import (
	"strings"

	"github.com/gorilla/websocket"
)

const (
	DefaultBaseURL  = "wss://api.deepgram.com"
	DefaultModel    = "nova-3"
	DefaultLanguage = "en-US"

	// audio is sent in frames of this size so the upstream can start
	// transcribing before the whole utterance is uploaded
	frameSize = 8 * 1024
)

type TranscriptionClient struct {
	apiKey   string
	baseURL  string
	model    string
	language string

	dialer *websocket.Dialer
}

type ClientOption func(*TranscriptionClient)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *TranscriptionClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithModel(model string) ClientOption {
	return func(c *TranscriptionClient) {
		c.model = model
	}
}

func WithLanguage(language string) ClientOption {
	return func(c *TranscriptionClient) {
		c.language = language
	}
}

func NewTranscriptionClient(apiKey string, opts ...ClientOption) *TranscriptionClient {
	c := &TranscriptionClient{
		apiKey:   apiKey,
		baseURL:  DefaultBaseURL,
		model:    DefaultModel,
		language: DefaultLanguage,
		dialer:   websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
