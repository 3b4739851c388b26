// Package session drives a switch console from first login prompt to the
// end of the configuration upload.
package session

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"switch-provisioner/internal/extract"
	"switch-provisioner/internal/transport"
)

// Device prompts.
const (
	PasswordPrompt = "Enter password:"
	SetupPrompt    = `Would you like to run "Set Up" to configure the switch? [y/n]`
	PendingPrompt  = "Confirm seeing above note [y]:"
	MainPrompt     = ">> Main#"
)

// Operator answers.
const (
	Password          = "admin"
	DeclineSetup      = "n"
	DisablePagination = "lines 0"
)

// Default pacing.
const (
	// LinePacing is slept after every uploaded configuration line.
	LinePacing = 50 * time.Millisecond
	// SettleDelay is slept after the first command before reading again.
	SettleDelay = 200 * time.Millisecond
)

var (
	// ErrPendingConfig means the switch holds a pending configuration that
	// has to be cleared by hand before it can be provisioned.
	ErrPendingConfig = errors.New("switch reports a pending configuration; clear it on the console by hand and retry")
	// ErrNoValidConfig means the configuration file holds no command block.
	ErrNoValidConfig = errors.New("no valid configuration block found")
	// ErrSourceExhausted means the replay ended before the session did.
	ErrSourceExhausted = errors.New("input ended before the session finished")
)

// State is a step of the console session.
type State int

const (
	WaitPassword State = iota
	WaitPrompt
	WaitMainPrompt
	Upload
	Success
	Error
)

var stateNames = map[State]string{
	WaitPassword:   "WAIT_PASSWORD",
	WaitPrompt:     "WAIT_PROMPT",
	WaitMainPrompt: "WAIT_MAIN_PROMPT",
	Upload:         "UPLOAD",
	Success:        "SUCCESS",
	Error:          "ERROR",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether the session is over.
func (s State) Terminal() bool { return s == Success || s == Error }

// Timing holds the session's sleeps.
type Timing struct {
	LinePacing  time.Duration
	SettleDelay time.Duration
}

// DefaultTiming is the pacing used against real devices.
func DefaultTiming() Timing {
	return Timing{LinePacing: LinePacing, SettleDelay: SettleDelay}
}

// ConfigDocument is the cleaned configuration being uploaded.
type ConfigDocument []string

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the status logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithTiming overrides the default pacing.
func WithTiming(t Timing) Option {
	return func(s *Session) { s.timing = t }
}

// WithSleep replaces time.Sleep.
func WithSleep(fn func(time.Duration)) Option {
	return func(s *Session) { s.sleep = fn }
}

// Session is one provisioning run against one device.
type Session struct {
	id         string
	state      State
	transport  transport.Transport
	buf        ResponseBuffer
	doc        ConfigDocument
	configPath string
	sent       []string
	settled    bool

	timing Timing
	sleep  func(time.Duration)
	logger *log.Logger
}

// New creates a session in WaitPassword. The session owns t for its whole
// life but does not close it.
func New(t transport.Transport, configPath string, opts ...Option) *Session {
	s := &Session{
		id:         uuid.NewString(),
		state:      WaitPassword,
		transport:  t,
		configPath: configPath,
		timing:     DefaultTiming(),
		sleep:      time.Sleep,
		logger:     log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State { return s.state }

// Sent returns every command written by this session, in order.
func (s *Session) Sent() []string { return append([]string(nil), s.sent...) }

// Document returns the configuration being uploaded, once Upload was entered.
func (s *Session) Document() ConfigDocument { return s.doc }

// Run reads and answers until a terminal state is reached. It returns nil
// exactly when the session ends in Success.
func (s *Session) Run() error {
	s.logger.Printf("Session %s started, waiting for %q", s.id, PasswordPrompt)

	for !s.state.Terminal() {
		chunk, err := s.transport.ReadChunk()
		if errors.Is(err, transport.ErrEndOfInput) {
			return s.fail(fmt.Errorf("%w while in %s", ErrSourceExhausted, s.state))
		}
		if err != nil {
			return s.fail(err)
		}

		s.buf.Append(chunk)
		if err := s.advance(); err != nil {
			return s.fail(err)
		}
	}

	return nil
}

// advance performs at most one transition for the current buffer.
func (s *Session) advance() error {
	switch s.state {
	case WaitPassword:
		if s.buf.Contains(PasswordPrompt) {
			return s.answer(PasswordPrompt, Password, WaitPrompt)
		}

	case WaitPrompt:
		if s.buf.Contains(SetupPrompt) {
			return s.answer(SetupPrompt, DeclineSetup, WaitMainPrompt)
		}
		if s.buf.Contains(PendingPrompt) {
			s.logger.Printf("MATCHED: %s", PendingPrompt)
			return ErrPendingConfig
		}

	case WaitMainPrompt:
		if s.buf.Contains(MainPrompt) {
			if err := s.answer(MainPrompt, DisablePagination, Upload); err != nil {
				return err
			}
			return s.upload()
		}
	}
	return nil
}

func (s *Session) answer(prompt, reply string, next State) error {
	s.logger.Printf("MATCHED: %s", prompt)
	if err := s.send(reply); err != nil {
		return err
	}
	s.buf.Clear()
	s.state = next
	return nil
}

func (s *Session) send(text string) error {
	if err := s.transport.WriteLine(transport.NewCommand(text)); err != nil {
		return err
	}
	s.sent = append(s.sent, text)

	if !s.settled {
		s.settled = true
		s.pause(s.timing.SettleDelay)
	}
	return nil
}

func (s *Session) upload() error {
	lines, err := extract.File(s.configPath)
	if err != nil {
		return fmt.Errorf("failed to read configuration: %w", err)
	}
	if len(lines) == 0 {
		return fmt.Errorf("%w in %s", ErrNoValidConfig, s.configPath)
	}
	s.doc = ConfigDocument(lines)

	s.logger.Printf("Uploading %d lines from %s", len(s.doc), s.configPath)
	for _, line := range s.doc {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := s.send(line); err != nil {
			return fmt.Errorf("upload interrupted: %w", err)
		}
		s.pause(s.timing.LinePacing)
	}

	s.state = Success
	s.logger.Printf("Session %s: configuration uploaded", s.id)
	return nil
}

func (s *Session) pause(d time.Duration) {
	if d > 0 {
		s.sleep(d)
	}
}

func (s *Session) fail(err error) error {
	s.state = Error
	s.logger.Printf("Session %s failed: %v", s.id, err)
	return err
}
