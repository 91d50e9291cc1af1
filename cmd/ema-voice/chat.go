package main

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/koscakluka/ema-voice/core/retry"
	"github.com/koscakluka/ema-voice/internal/client"
)

type chatOptions struct {
	server  string
	format  string
	saveDir string
	retries uint64
}

func newChatCmd() *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat [audio files...]",
		Short: "Hold a conversation with a running server",
		Long: "Starts a session on a running server, plays the greeting turn and submits each audio file as one utterance. " +
			"Press ESC to interrupt the current turn.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.server, "server", "s", "http://localhost:8000", "server base URL")
	cmd.Flags().StringVar(&opts.format, "format", "", "audio format of the files (default: file extension)")
	cmd.Flags().StringVar(&opts.saveDir, "save-audio", "", "directory to write synthesized PCM audio to")
	cmd.Flags().Uint64Var(&opts.retries, "retries", retry.DefaultMaxRetries, "retries for a failed turn")
	return cmd
}

func runChat(cmd *cobra.Command, opts chatOptions, files []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	c := client.New(opts.server)
	sessionID, err := c.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() {
		if err := c.EndSession(context.WithoutCancel(ctx), sessionID); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to end session: %v\n", err)
		}
	}()

	keys := watchKeys(ctx, stop)
	defer keys.Close()

	renderer := newTurnRenderer(cmd.OutOrStdout(), terminalWidth(), opts.saveDir)
	renderer.newline = keys.newline()
	renderer.println(statusStyle.Render("session " + sessionID))

	policy := retry.Policy{
		MaxRetries: opts.retries,
		BaseDelay:  retry.DefaultBaseDelay,
		MaxDelay:   retry.DefaultMaxDelay,
	}

	err = runTurn(ctx, policy, keys, renderer, func(ctx context.Context) iter.Seq2[client.Event, error] {
		return c.Start(ctx, sessionID)
	})
	if err != nil {
		return err
	}

	for _, path := range files {
		audio, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		format := opts.format
		if format == "" {
			format = strings.TrimPrefix(filepath.Ext(path), ".")
		}

		err = runTurn(ctx, policy, keys, renderer, func(ctx context.Context) iter.Seq2[client.Event, error] {
			return c.Process(ctx, sessionID, audio, format)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// runTurn consumes one turn, starting a new one while the policy allows it.
// A turn that still fails after the retries is reported and skipped.
func runTurn(ctx context.Context, policy retry.Policy, keys *keyWatcher, renderer *turnRenderer, open func(context.Context) iter.Seq2[client.Event, error]) error {
	err := policy.Do(ctx, func(ctx context.Context) error {
		turnCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-keys.interrupts:
				cancel()
			case <-turnCtx.Done():
			}
		}()

		renderer.begin()
		for event, err := range open(turnCtx) {
			if err != nil {
				if turnCtx.Err() != nil && ctx.Err() == nil {
					renderer.interrupted()
					return nil
				}
				return err
			}
			if err := renderer.render(event); err != nil {
				return err
			}
		}
		if turnCtx.Err() != nil && ctx.Err() == nil {
			renderer.interrupted()
		}
		return nil
	})

	var failure *retry.Failure
	if errors.As(err, &failure) {
		return nil
	}
	return err
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return defaultWidth
	}
	return width
}

// keyWatcher puts an interactive terminal in raw mode and reports ESC
// presses. Ctrl+C still ends the program.
type keyWatcher struct {
	interrupts chan struct{}
	restore    func()
}

func watchKeys(ctx context.Context, quit context.CancelFunc) *keyWatcher {
	w := &keyWatcher{interrupts: make(chan struct{})}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return w
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return w
	}
	w.restore = func() { _ = term.Restore(fd, oldState) }

	go func() {
		buf := make([]byte, 1)
		for ctx.Err() == nil {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}
			switch buf[0] {
			case 0x1b:
				select {
				case w.interrupts <- struct{}{}:
				default:
				}
			case 0x03:
				quit()
				return
			}
		}
	}()
	return w
}

// newline is the line ending that keeps output aligned in raw mode.
func (w *keyWatcher) newline() string {
	if w.restore != nil {
		return "\r\n"
	}
	return "\n"
}

func (w *keyWatcher) Close() {
	if w.restore != nil {
		w.restore()
	}
}
