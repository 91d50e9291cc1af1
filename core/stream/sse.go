package stream

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"strings"
)

const (
	eventPrefix = "event:"
	dataPrefix  = "data:"

	// DoneMarker terminates OpenAI-style event streams.
	DoneMarker = "[DONE]"

	// Base64 audio frames easily outgrow the default scanner token size.
	maxSSELineSize = 4 << 20
)

type SSEMessage struct {
	Event string
	Data  string
}

// ScanSSE splits r into server-sent event messages. Consecutive data lines are
// joined with a newline and a blank line dispatches the message. Comment lines
// and unknown fields are skipped.
func ScanSSE(r io.Reader) iter.Seq2[SSEMessage, error] {
	return func(yield func(SSEMessage, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)

		var (
			current SSEMessage
			data    []string
		)
		dispatch := func() bool {
			if len(data) == 0 && current.Event == "" {
				return true
			}
			current.Data = strings.Join(data, "\n")
			msg := current
			current, data = SSEMessage{}, nil
			return yield(msg, nil)
		}

		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			switch {
			case line == "":
				if !dispatch() {
					return
				}
			case strings.HasPrefix(line, ":"):
			case strings.HasPrefix(line, eventPrefix):
				current.Event = strings.TrimSpace(strings.TrimPrefix(line, eventPrefix))
			case strings.HasPrefix(line, dataPrefix):
				data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, dataPrefix), " "))
			}
		}

		if err := scanner.Err(); err != nil {
			yield(SSEMessage{}, fmt.Errorf("error reading event stream: %w", err))
			return
		}
		dispatch()
	}
}
