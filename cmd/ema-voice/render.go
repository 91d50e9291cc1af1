package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"

	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/internal/client"
)

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

const (
	defaultWidth = 80
	replyIndent  = 2
)

// turnRenderer prints the events of one turn at a time.
type turnRenderer struct {
	out     io.Writer
	width   int
	newline string
	saveDir string

	turn          int
	transcript    strings.Builder
	userPrinted   bool
	reply         strings.Builder
	audio         []byte
	sampleRate    int
	audioSegments int
}

func newTurnRenderer(out io.Writer, width int, saveDir string) *turnRenderer {
	if width <= 0 {
		width = defaultWidth
	}
	return &turnRenderer{out: out, width: width, newline: "\n", saveDir: saveDir}
}

func (r *turnRenderer) begin() {
	r.turn++
	r.transcript.Reset()
	r.userPrinted = false
	r.reply.Reset()
	r.audio = nil
	r.sampleRate = 0
	r.audioSegments = 0
}

// render prints event. An error event is returned as a *retry.Failure.
func (r *turnRenderer) render(event client.Event) error {
	switch event.Kind {
	case events.KindStateChange:
		var payload events.StateChangePayload
		if err := event.Decode(&payload); err != nil {
			return err
		}
		r.println(statusStyle.Render("[" + payload.State + "]"))

	case events.KindTranscript:
		var payload events.TextPayload
		if err := event.Decode(&payload); err != nil {
			return err
		}
		r.transcript.WriteString(payload.Text)

	case events.KindResponse:
		var payload events.TextPayload
		if err := event.Decode(&payload); err != nil {
			return err
		}
		r.printUser()
		r.reply.WriteString(payload.Text)

	case events.KindAudio:
		var payload events.AudioPayload
		if err := event.Decode(&payload); err != nil {
			return err
		}
		chunk, err := base64.StdEncoding.DecodeString(payload.Audio)
		if err != nil {
			return fmt.Errorf("failed to decode audio segment %d: %w", payload.Index, err)
		}
		r.audio = append(r.audio, chunk...)
		r.sampleRate = payload.SampleRate
		r.audioSegments++

	case events.KindError:
		failure := event.Failure()
		r.printUser()
		r.println(errorStyle.Render("error: " + failure.Message))
		return failure

	case events.KindDone:
		r.printUser()
		r.printReply()
		return r.saveAudio()
	}
	return nil
}

func (r *turnRenderer) interrupted() {
	r.printUser()
	if r.reply.Len() > 0 {
		r.printReply()
	}
	r.println(statusStyle.Render("[interrupted]"))
}

func (r *turnRenderer) printUser() {
	if r.userPrinted || r.transcript.Len() == 0 {
		return
	}
	r.userPrinted = true
	r.println(userStyle.Render("you") + " " + r.transcript.String())
}

func (r *turnRenderer) printReply() {
	r.println(assistantStyle.Render("agent"))
	wrapped := wordwrap.String(r.reply.String(), r.width-replyIndent)
	r.println(indent.String(wrapped, replyIndent))
	if r.audioSegments > 0 {
		r.println(statusStyle.Render(fmt.Sprintf("  %d audio segments, %d bytes at %d Hz",
			r.audioSegments, len(r.audio), r.sampleRate)))
	}
}

func (r *turnRenderer) saveAudio() error {
	if r.saveDir == "" || len(r.audio) == 0 {
		return nil
	}
	if err := os.MkdirAll(r.saveDir, 0o755); err != nil {
		return fmt.Errorf("failed to create audio directory: %w", err)
	}
	path := filepath.Join(r.saveDir, fmt.Sprintf("turn-%03d.pcm", r.turn))
	if err := os.WriteFile(path, r.audio, 0o644); err != nil {
		return fmt.Errorf("failed to save audio: %w", err)
	}
	r.println(statusStyle.Render("  saved " + path))
	return nil
}

func (r *turnRenderer) println(text string) {
	fmt.Fprint(r.out, strings.ReplaceAll(text, "\n", r.newline)+r.newline)
}
