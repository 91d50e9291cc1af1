package events

import "encoding/base64"

const (
	KindStateChange Kind = "state_change"
	KindTranscript  Kind = "transcript"
	KindResponse    Kind = "response"
	KindAudio       Kind = "audio"
	KindError       Kind = "error"
	KindDone        Kind = "done"
)

func Kinds() []Kind {
	return []Kind{KindStateChange, KindTranscript, KindResponse, KindAudio, KindError, KindDone}
}

type StateChangePayload struct {
	State string `json:"state" jsonschema:"enum=idle,enum=listening,enum=processing,enum=speaking"`
}

type StateChange struct {
	Base
	state string
}

func NewStateChange(state string) StateChange {
	return StateChange{Base: NewBase(KindStateChange), state: state}
}

func (e StateChange) State() string { return e.state }
func (e StateChange) Payload() any  { return StateChangePayload{State: e.state} }

type TextPayload struct {
	Text string `json:"text"`
}

type Transcript struct {
	Base
	text string
}

func NewTranscript(text string) Transcript {
	return Transcript{Base: NewBase(KindTranscript), text: text}
}

func (e Transcript) Text() string { return e.text }
func (e Transcript) Payload() any { return TextPayload{Text: e.text} }

type Response struct {
	Base
	text string
}

func NewResponse(text string) Response {
	return Response{Base: NewBase(KindResponse), text: text}
}

func (e Response) Text() string { return e.text }
func (e Response) Payload() any { return TextPayload{Text: e.text} }

type AudioPayload struct {
	Audio      string `json:"audio" jsonschema:"description=base64 encoded PCM audio"`
	SampleRate int    `json:"sample_rate"`
	Index      int    `json:"index"`
}

type Audio struct {
	Base
	audio      []byte
	sampleRate int
	index      int
}

func NewAudio(audio []byte, sampleRate, index int) Audio {
	return Audio{Base: NewBase(KindAudio), audio: audio, sampleRate: sampleRate, index: index}
}

func (e Audio) Audio() []byte   { return e.audio }
func (e Audio) SampleRate() int { return e.sampleRate }
func (e Audio) Index() int      { return e.index }
func (e Audio) Payload() any {
	return AudioPayload{
		Audio:      base64.StdEncoding.EncodeToString(e.audio),
		SampleRate: e.sampleRate,
		Index:      e.index,
	}
}

type ErrorPayload struct {
	ErrorKind    ErrorKind `json:"error_kind"`
	Message      string    `json:"message"`
	Details      string    `json:"details,omitempty"`
	RetryAllowed bool      `json:"retry_allowed"`
}

type Error struct {
	Base
	errorKind ErrorKind
	details   string
}

// NewError builds an error event. details carries the technical cause and is
// never shown to the user as-is.
func NewError(kind ErrorKind, details string) Error {
	return Error{Base: NewBase(KindError), errorKind: kind, details: details}
}

func (e Error) ErrorKind() ErrorKind { return e.errorKind }
func (e Error) Message() string      { return e.errorKind.UserMessage() }
func (e Error) Details() string      { return e.details }
func (e Error) RetryAllowed() bool   { return e.errorKind.RetryAllowed() }
func (e Error) Payload() any {
	return ErrorPayload{
		ErrorKind:    e.errorKind,
		Message:      e.Message(),
		Details:      e.details,
		RetryAllowed: e.RetryAllowed(),
	}
}

type DonePayload struct{}

type Done struct {
	Base
}

func NewDone() Done {
	return Done{Base: NewBase(KindDone)}
}

func (e Done) Payload() any { return DonePayload{} }

// IsTerminal reports whether e closes a turn's event stream.
func IsTerminal(e Event) bool {
	return e.Kind() == KindDone || e.Kind() == KindError
}
