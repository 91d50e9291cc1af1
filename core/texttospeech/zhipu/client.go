// Package zhipu synthesizes speech with the Zhipu (BigModel) streaming speech
// endpoint. The endpoint takes whole inputs, so replies are synthesized one
// sentence at a time.
package zhipu

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultBaseURL = "https://open.bigmodel.cn/api/paas/v4"
	DefaultModel   = "glm-tts"
	DefaultVoice   = "female"

	responseFormatPCM  = "pcm"
	encodeFormatBase64 = "base64"
)

type Client struct {
	apiKey  string
	baseURL string
	model   string
	voice   string
	speed   float64
	volume  float64

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

func WithVoice(voice string) ClientOption {
	return func(c *Client) {
		c.voice = voice
	}
}

// WithSpeed sets the speaking rate, 0.5 to 2.0.
func WithSpeed(speed float64) ClientOption {
	return func(c *Client) {
		c.speed = speed
	}
}

// WithVolume sets the output gain, 0 to 2.0.
func WithVolume(volume float64) ClientOption {
	return func(c *Client) {
		c.volume = volume
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
		voice:   DefaultVoice,
		speed:   1.0,
		volume:  1.0,
	}
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
