package events

import "time"

type Kind string

// Event is a single entry of a turn's ordered event stream. Payload returns
// the JSON-serializable body that is sent over the wire under Kind.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
	Payload() any
}

// Base carries the fields shared by every event kind.
type Base struct {
	kind Kind
	at   time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, at: time.Now()}
}

func (b Base) Kind() Kind           { return b.kind }
func (b Base) Timestamp() time.Time { return b.at }

// Envelope is the self-describing form of an event used on transports that
// do not name events themselves, such as websocket messages.
type Envelope struct {
	Event Kind `json:"event"`
	Data  any  `json:"data"`
}

func Wrap(event Event) Envelope {
	return Envelope{Event: event.Kind(), Data: event.Payload()}
}
