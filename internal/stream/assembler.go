// Package stream assembles a model response from a chunked byte stream,
// keeping the visible transcript and the persisted history in lock-step
// through a narrow renderer/sink pair.
package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
)

// ErrorSentinel marks an in-band generation error: a chunk beginning with
// this prefix carries a human-readable message instead of response text.
const ErrorSentinel = "ERROR_SERVER:"

const readBufferSize = 4096

// State tracks one streaming transaction.
type State int32

const (
	Idle State = iota
	Sending
	Streaming
	Settled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Streaming:
		return "streaming"
	case Settled:
		return "settled"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Renderer is the presentation collaborator. Chunk receives raw text in
// arrival order while streaming; Settle receives the complete text exactly
// once for the final rich render; Fail receives a user-facing notice.
type Renderer interface {
	Chunk(text string)
	Settle(full string)
	Fail(msg string)
}

// Sink commits the finished response to durable history. It runs after
// end-of-stream and before the final render.
type Sink interface {
	Commit(full string) error
}

// Opener starts the transport request and hands back the chunked body.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// GenerationError is a server-side generation failure reported in-band.
type GenerationError struct {
	Message string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %s", e.Message)
}

// Assembler runs one streaming transaction at a time.
type Assembler struct {
	renderer Renderer
	state    atomic.Int32
}

// New creates an idle Assembler.
func New(renderer Renderer) *Assembler {
	return &Assembler{renderer: renderer}
}

// State reports the current transaction state.
func (a *Assembler) State() State {
	return State(a.state.Load())
}

func (a *Assembler) setState(s State) {
	a.state.Store(int32(s))
}

// Run opens the stream, forwards chunks to the renderer in arrival order,
// and on clean end-of-stream commits the accumulated text to the sink and
// asks the renderer for one final rich render. A sentinel chunk aborts the
// transaction with a GenerationError and nothing is committed. Cancelling
// ctx aborts the read and surfaces ctx.Err as a transport failure.
func (a *Assembler) Run(ctx context.Context, open Opener, sink Sink) (string, error) {
	a.setState(Sending)

	body, err := open(ctx)
	if err != nil {
		return "", a.fail(err.Error(), err)
	}
	defer body.Close()

	var full strings.Builder
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			a.setState(Streaming)
			chunk := string(buf[:n])
			if strings.HasPrefix(chunk, ErrorSentinel) {
				msg := strings.TrimPrefix(strings.TrimPrefix(chunk, ErrorSentinel), " ")
				genErr := &GenerationError{Message: strings.TrimSpace(msg)}
				return "", a.fail(genErr.Message, genErr)
			}
			full.WriteString(chunk)
			a.renderer.Chunk(chunk)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", a.fail(ctxErr.Error(), ctxErr)
			}
			return "", a.fail(readErr.Error(), readErr)
		}
	}

	text := full.String()
	if text != "" && sink != nil {
		if err := sink.Commit(text); err != nil {
			return "", a.fail(err.Error(), err)
		}
	}

	a.setState(Settled)
	a.renderer.Settle(text)
	return text, nil
}

func (a *Assembler) fail(msg string, err error) error {
	a.setState(Failed)
	slog.Error("Stream transaction failed", "error", err)
	a.renderer.Fail(msg)
	return err
}
