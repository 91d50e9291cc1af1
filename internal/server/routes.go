package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/speechtotext"
)

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type historyResponse struct {
	SessionID string         `json:"session_id"`
	Messages  []llms.Message `json:"messages"`
}

type stopResponse struct {
	SessionID string `json:"session_id"`
	Stopped   bool   `json:"stopped"`
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)

	api := router.Group("/api/conversation")
	api.POST("/start", s.handleStart)
	api.GET("/stream", s.requireSession, s.handleStream)
	api.POST("/process", s.requireSession, s.handleProcess)
	api.GET("/history", s.requireSession, s.handleHistory)
	api.POST("/stop", s.requireSession, s.handleStop)
	api.DELETE("/session", s.requireSession, s.handleEnd)
	api.GET("/ws", s.requireSession, s.handleWebsocket)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "healthy", Service: serviceName, Version: s.version})
}

func (s *Server) handleStart(c *gin.Context) {
	sessionID, err := s.orchestrator.CreateSession()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{SessionID: sessionID, Message: "Session created"})
}

// requireSession rejects requests for sessions that do not exist before any
// turn is started.
func (s *Server) requireSession(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		abortWithError(c, fmt.Errorf("%w: missing session_id", orchestration.ErrSessionNotFound))
		return
	}
	if _, err := s.orchestrator.State(sessionID); err != nil {
		abortWithError(c, err)
		return
	}
	c.Set("session_id", sessionID)
	c.Next()
}

func (s *Server) handleStream(c *gin.Context) {
	if action := c.DefaultQuery("action", "start"); action != "start" {
		c.AbortWithStatusJSON(http.StatusBadRequest, events.NewError(events.ErrorKindUnknown, "unsupported action "+strconv.Quote(action)).Payload())
		return
	}

	turn, err := s.orchestrator.StartConversation(c.Request.Context(), c.GetString("session_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	streamTurn(c, turn)
}

func (s *Server) handleProcess(c *gin.Context) {
	payload, opts, err := s.readAudio(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	turn, err := s.orchestrator.SubmitAudio(c.Request.Context(), c.GetString("session_id"), payload, opts...)
	if err != nil {
		abortWithError(c, err)
		return
	}
	streamTurn(c, turn)
}

func (s *Server) handleHistory(c *gin.Context) {
	sessionID := c.GetString("session_id")
	messages, err := s.orchestrator.History(sessionID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if messages == nil {
		messages = []llms.Message{}
	}
	c.JSON(http.StatusOK, historyResponse{SessionID: sessionID, Messages: messages})
}

func (s *Server) handleStop(c *gin.Context) {
	sessionID := c.GetString("session_id")
	if err := s.orchestrator.Stop(c.Request.Context(), sessionID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stopResponse{SessionID: sessionID, Stopped: true})
}

func (s *Server) handleEnd(c *gin.Context) {
	sessionID := c.GetString("session_id")
	if err := s.orchestrator.EndSession(sessionID); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// readAudio takes the utterance from a multipart "file" field or the raw
// body. The encoding comes from the format query parameter, the file name
// or the content type, in that order.
func (s *Server) readAudio(c *gin.Context) ([]byte, []speechtotext.TranscriptionOption, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxAudio)

	var (
		payload []byte
		hints   []string
	)
	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open uploaded audio: %w", err)
		}
		defer f.Close()
		if payload, err = io.ReadAll(f); err != nil {
			return nil, nil, fmt.Errorf("failed to read uploaded audio: %w", err)
		}
		hints = append(hints, c.Query("format"), file.Filename, file.Header.Get("Content-Type"))
	} else {
		if payload, err = io.ReadAll(c.Request.Body); err != nil {
			return nil, nil, fmt.Errorf("failed to read audio body: %w", err)
		}
		hints = append(hints, c.Query("format"), c.ContentType())
	}
	if len(payload) == 0 {
		return nil, nil, orchestration.ErrEmptyAudio
	}

	var opts []speechtotext.TranscriptionOption
	if format, ok := firstFormat(hints...); ok {
		sampleRate := audio.DefaultSampleRate
		if rate, err := strconv.Atoi(c.Query("sample_rate")); err == nil && rate > 0 {
			sampleRate = rate
		}
		opts = append(opts, speechtotext.WithEncodingInfo(audio.EncodingInfo{SampleRate: sampleRate, Format: format}))
	}
	if language := c.Query("language"); language != "" {
		opts = append(opts, speechtotext.WithLanguage(language))
	}
	return payload, opts, nil
}

func firstFormat(hints ...string) (audio.EncodingFormat, bool) {
	for _, hint := range hints {
		if format, ok := audio.ParseEncodingFormat(hint); ok {
			return format, true
		}
	}
	return "", false
}

func statusFor(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, orchestration.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestration.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, orchestration.ErrEmptyAudio):
		return http.StatusBadRequest
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, orchestration.ErrOrchestratorClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	event := events.NewError(orchestration.ErrorKindOf(err), err.Error())
	c.AbortWithStatusJSON(statusFor(err), event.Payload())
}
