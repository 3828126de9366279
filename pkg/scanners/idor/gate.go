package idor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
)

// Gate blocks between iterations until the operator lets the next request through.
type Gate interface {
	Wait(ctx context.Context) error
}

// LineGate releases one iteration per line read from its reader (normally stdin).
//
// Lines are read on a helper goroutine so that Wait can return when ctx is
// cancelled; the goroutine never reads more than one line ahead of Wait.
// Once the reader is exhausted Wait stops pausing, like a terminal whose
// input has been closed. Only a read error is reported.
type LineGate struct {
	reader    *bufio.Reader
	once      sync.Once
	closeOnce sync.Once
	lines     chan error
	done      chan struct{}
	stopped   chan struct{}
}

var errGateClosed = errors.New("operator gate closed")

func NewLineGate(r io.Reader) *LineGate {
	return &LineGate{
		reader:  bufio.NewReader(r),
		lines:   make(chan error),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (g *LineGate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return errGateClosed
	default:
	}
	g.once.Do(func() { go g.readLoop() })

	select {
	case err, ok := <-g.lines:
		if !ok {
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-g.done:
		return errGateClosed
	}
}

// Close releases the reading goroutine once it has a line or an error to hand over.
// A read already blocked on the underlying reader cannot be interrupted.
func (g *LineGate) Close() error {
	g.closeOnce.Do(func() { close(g.done) })
	return nil
}

func (g *LineGate) readLoop() {
	defer close(g.stopped)
	defer close(g.lines)
	for {
		line, err := g.reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// an unterminated final line still counts as one press of enter
			if len(line) > 0 {
				g.send(nil)
			}
			return
		}
		if err != nil {
			// keep reporting the failure until the gate is closed
			for g.send(err) {
			}
			return
		}
		if !g.send(nil) {
			return
		}
	}
}

func (g *LineGate) send(err error) bool {
	select {
	case g.lines <- err:
		return true
	case <-g.done:
		return false
	}
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(ctx context.Context) error

func (f GateFunc) Wait(ctx context.Context) error {
	return f(ctx)
}
