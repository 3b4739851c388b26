package transport

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Replay feeds a recorded console transcript to the session one line per
// read. Writes go nowhere but are logged and recorded.
type Replay struct {
	name    string
	closer  io.Closer
	scanner *bufio.Scanner
	delay   time.Duration
	sleep   func(time.Duration)
	logger  *log.Logger
	sent    []Command
}

// OpenReplay opens a transcript file. delay is slept before every line is
// handed out; pass ReplayLineDelay to emulate a device.
func OpenReplay(path string, delay time.Duration, logger *log.Logger) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open simulation file: %w", err)
	}
	r := NewReplay(f, path, delay, logger)
	r.closer = f
	return r, nil
}

// NewReplay wraps an already open transcript.
func NewReplay(src io.Reader, name string, delay time.Duration, logger *log.Logger) *Replay {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Replay{
		name:    name,
		scanner: scanner,
		delay:   delay,
		sleep:   time.Sleep,
		logger:  logger,
	}
}

// ReadChunk returns the next transcript line with a line separator, or
// ErrEndOfInput when the transcript is exhausted.
func (r *Replay) ReadChunk() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read simulation file %s: %w", r.name, err)
		}
		return "", ErrEndOfInput
	}
	if r.delay > 0 {
		r.sleep(r.delay)
	}
	line := r.scanner.Text()
	r.logger.Printf("RX: %s", line)
	return line + "\n", nil
}

// WriteLine records cmd.
func (r *Replay) WriteLine(cmd Command) error {
	r.logger.Printf("TX (replay): %q", string(cmd.Bytes()))
	r.sent = append(r.sent, cmd)
	return nil
}

// Sent returns the texts of every command written so far, in order.
func (r *Replay) Sent() []string {
	out := make([]string, 0, len(r.sent))
	for _, c := range r.sent {
		out = append(out, c.Text())
	}
	return out
}

// Close releases the transcript file, if Replay opened it.
func (r *Replay) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
