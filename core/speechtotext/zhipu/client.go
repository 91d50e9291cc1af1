// Package zhipu transcribes recorded utterances with the Zhipu (BigModel)
// streaming transcription endpoint.
package zhipu

import (
	"net/http"
	"strings"

	"github.com/koscakluka/ema-voice/core/audio"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultBaseURL = "https://open.bigmodel.cn/api/paas/v4"
	DefaultModel   = "glm-asr-2512"
)

type Client struct {
	apiKey  string
	baseURL string
	model   string

	transcoder audio.Transcoder
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithTranscoder converts container formats the endpoint does not accept
// (browser webm/ogg recordings) to mp3 before upload.
func WithTranscoder(transcoder audio.Transcoder) ClientOption {
	return func(c *Client) {
		c.transcoder = transcoder
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{apiKey: apiKey, baseURL: DefaultBaseURL, model: DefaultModel}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)}
	}

	return c
}
