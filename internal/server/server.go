// Package server exposes the conversation orchestrator over HTTP. Turns are
// streamed as server-sent events or over a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/speechtotext"
)

const serviceName = "ema-voice"

// Orchestrator is the conversation surface the transport drives.
type Orchestrator interface {
	CreateSession() (string, error)
	StartConversation(ctx context.Context, sessionID string) (*orchestration.Turn, error)
	SubmitAudio(ctx context.Context, sessionID string, audio []byte, opts ...speechtotext.TranscriptionOption) (*orchestration.Turn, error)
	History(sessionID string) ([]llms.Message, error)
	State(sessionID string) (orchestration.State, error)
	Stop(ctx context.Context, sessionID string) error
	EndSession(sessionID string) error
}

type Server struct {
	orchestrator Orchestrator
	version      string
	maxAudio     int64

	engine   *gin.Engine
	upgrader websocket.Upgrader
}

type Option func(*Server)

func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// WithMaxAudioBytes limits the size of a submitted utterance.
func WithMaxAudioBytes(limit int64) Option {
	return func(s *Server) {
		s.maxAudio = limit
	}
}

func New(orchestrator Orchestrator, opts ...Option) *Server {
	s := &Server{
		orchestrator: orchestrator,
		version:      "dev",
		maxAudio:     25 << 20,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), cors())
	s.registerRoutes(s.engine)

	return s
}

// Handler is the instrumented HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.engine, serviceName)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string, out io.Writer) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdownErr <- srv.Shutdown(shutdownCtx)
	}()

	if out != nil {
		fmt.Fprintf(out, "ema-voice listening on %s\n", addr)
	}
	logger.Info("server listening", "addr", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "*")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
