package orchestration

import (
	"errors"
	"fmt"
	"net"

	"github.com/koscakluka/ema-voice/core/events"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrStaleTurn          = errors.New("turn is no longer active")
	ErrEmptyAudio         = errors.New("empty audio payload")
	ErrOrchestratorClosed = errors.New("orchestrator closed")
)

type Stage string

const (
	StageASR Stage = "asr"
	StageLLM Stage = "llm"
	StageTTS Stage = "tts"
)

// StageError is a failure of one pipeline stage. It terminates the turn but
// never the session.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ErrorKindOf classifies err for the error event sent to clients.
func ErrorKindOf(err error) events.ErrorKind {
	if err == nil {
		return events.ErrorKindUnknown
	}

	var stageErr *StageError
	if errors.As(err, &stageErr) {
		switch stageErr.Stage {
		case StageASR:
			return events.ErrorKindASR
		case StageLLM:
			return events.ErrorKindLLM
		case StageTTS:
			return events.ErrorKindTTS
		}
	}

	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrStaleTurn) || errors.Is(err, ErrOrchestratorClosed) {
		return events.ErrorKindSession
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return events.ErrorKindNetwork
	}

	return events.ErrorKindUnknown
}
