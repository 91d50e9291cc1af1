// Package deepgram synthesizes speech over Deepgram's streaming speak
// websocket. A single connection serves a whole reply.
package deepgram

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gorilla/websocket"
)

type Voice string

const (
	VoiceAsteria Voice = "aura-2-asteria-en"
	VoiceLuna    Voice = "aura-2-luna-en"
	VoiceOrion   Voice = "aura-2-orion-en"
	VoiceArcas   Voice = "aura-2-arcas-en"
	VoiceThalia  Voice = "aura-2-thalia-en"

	defaultVoice = VoiceThalia

	DefaultBaseURL = "wss://api.deepgram.com"
)

func AvailableVoices() []Voice {
	return []Voice{VoiceAsteria, VoiceLuna, VoiceOrion, VoiceArcas, VoiceThalia}
}

type TextToSpeechClient struct {
	apiKey  string
	baseURL string
	voice   Voice

	dialer *websocket.Dialer
}

type ClientOption func(*TextToSpeechClient)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *TextToSpeechClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithVoice(voice Voice) ClientOption {
	return func(c *TextToSpeechClient) {
		c.voice = voice
	}
}

func NewTextToSpeechClient(apiKey string, opts ...ClientOption) (*TextToSpeechClient, error) {
	c := &TextToSpeechClient{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		voice:   defaultVoice,
		dialer:  websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}

	if !slices.Contains(AvailableVoices(), c.voice) {
		return nil, fmt.Errorf("invalid voice %q", c.voice)
	}
	return c, nil
}
