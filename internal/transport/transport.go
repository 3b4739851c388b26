// Package transport gives the provisioning session one read/write surface
// over either a live serial console or a recorded console transcript.
package transport

import (
	"errors"
	"time"
)

// Pacing and timeouts.
const (
	// ReplayLineDelay emulates device latency between replayed lines.
	ReplayLineDelay = 50 * time.Millisecond
	// PollBackoff is how long a live read waits when nothing is buffered.
	PollBackoff = 100 * time.Millisecond
	// IOTimeout is the budget for a single live write.
	IOTimeout = 3 * time.Second
)

// LineTerminator ends every command written to the device.
const LineTerminator = "\r\n"

var (
	// ErrEndOfInput is returned by ReadChunk once a replay source is exhausted.
	ErrEndOfInput = errors.New("end of input")
	// ErrReadErrorLimit is returned when consecutive live read errors reach
	// the configured ceiling.
	ErrReadErrorLimit = errors.New("too many consecutive read errors")
)

// Transport is what the session reads device output from and writes
// commands to.
//
// ReadChunk returns whatever text is available. An empty chunk with a nil
// error means nothing has arrived yet.
type Transport interface {
	ReadChunk() (string, error)
	WriteLine(cmd Command) error
	Close() error
}

// Command is one outbound console line.
type Command struct {
	text string
}

// NewCommand builds a command from text without its terminator.
func NewCommand(text string) Command {
	return Command{text: text}
}

// Text returns the command without its terminator.
func (c Command) Text() string { return c.text }

// Bytes returns the wire form of the command.
func (c Command) Bytes() []byte { return []byte(c.text + LineTerminator) }

func (c Command) String() string { return c.text }
