// Package provision runs one provisioning session end to end and decides
// the process exit code.
package provision

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"switch-provisioner/internal/notify"
	"switch-provisioner/internal/session"
	"switch-provisioner/internal/transport"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
)

var (
	// ErrConfigNotFound means the configuration file does not exist.
	ErrConfigNotFound = errors.New("config file not found")
	// ErrTransportOpen means neither the port nor the simulation file could be opened.
	ErrTransportOpen = errors.New("failed to open transport")
	// ErrFault wraps a panic raised while the session was running.
	ErrFault = errors.New("unexpected fault")
)

// Notifier receives the result of every run that got as far as a session.
type Notifier interface {
	Publish(r notify.Result) error
}

// Options configure a run.
type Options struct {
	ComPort        string
	BaudRate       int
	ConfigFile     string
	SimulationFile string
	MaxReadErrors  int

	Timing      session.Timing
	ReplayDelay time.Duration
	Notifier    Notifier
}

// DefaultOptions returns the options used against real devices.
func DefaultOptions() Options {
	return Options{
		BaudRate:    transport.DefaultBaudRate,
		Timing:      session.DefaultTiming(),
		ReplayDelay: transport.ReplayLineDelay,
	}
}

// Result is what a run ended with.
type Result struct {
	SessionID string
	Device    string
	State     session.State
	ExitCode  int
	Err       error
	Commands  []string
}

// Live console seams, replaced in tests.
var (
	resolvePort = transport.ResolvePort
	openSerial  = func(cfg transport.SerialConfig, logger *log.Logger) (transport.Transport, error) {
		return transport.OpenSerial(cfg, logger)
	}
)

// openTransport picks the transport once: replay when a simulation file is
// given, the serial console otherwise.
var openTransport = func(opts Options, logger *log.Logger) (transport.Transport, string, error) {
	if opts.SimulationFile != "" {
		logger.Printf("Running in simulation mode with input file: %s", opts.SimulationFile)
		r, err := transport.OpenReplay(opts.SimulationFile, opts.ReplayDelay, logger)
		if err != nil {
			return nil, "", err
		}
		return r, opts.SimulationFile, nil
	}

	name, err := resolvePort(opts.ComPort)
	if err != nil {
		return nil, "", err
	}
	s, err := openSerial(transport.SerialConfig{
		Port:          name,
		BaudRate:      opts.BaudRate,
		MaxReadErrors: opts.MaxReadErrors,
	}, logger)
	if err != nil {
		return nil, "", err
	}
	return s, name, nil
}

// Run provisions one device. The transport is released on every path.
func Run(opts Options, logger *log.Logger) Result {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if _, err := os.Stat(opts.ConfigFile); err != nil {
		return failed(logger, fmt.Errorf("%w: %s", ErrConfigNotFound, opts.ConfigFile))
	}

	t, device, err := openTransport(opts, logger)
	if err != nil {
		return failed(logger, fmt.Errorf("%w: %v", ErrTransportOpen, err))
	}
	defer func() {
		if err := t.Close(); err != nil {
			logger.Printf("Failed to close %s: %v", device, err)
		}
	}()

	s := session.New(t, opts.ConfigFile,
		session.WithLogger(logger),
		session.WithTiming(opts.Timing),
	)

	res := Result{SessionID: s.ID(), Device: device}
	res.Err = runSession(s)
	res.State = s.State()
	res.Commands = s.Sent()
	res.ExitCode = ExitCode(res.State)
	if res.Err != nil {
		res.State = session.Error
		res.ExitCode = ExitFailure
	}

	if res.ExitCode == ExitOK {
		logger.Printf("Provisioning completed successfully (%d commands sent)", len(res.Commands))
	} else {
		logger.Printf("Provisioning failed: %v", res.Err)
	}

	publish(opts.Notifier, res, logger)
	return res
}

// ExitCode maps a final session state to a process exit status.
func ExitCode(state session.State) int {
	if state == session.Success {
		return ExitOK
	}
	return ExitFailure
}

func runSession(s *session.Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrFault, r)
		}
	}()
	return s.Run()
}

func failed(logger *log.Logger, err error) Result {
	logger.Printf("Fatal: %v", err)
	return Result{State: session.Error, ExitCode: ExitFailure, Err: err}
}

func publish(n Notifier, res Result, logger *log.Logger) {
	if n == nil {
		return
	}
	r := notify.Result{
		Session:  res.SessionID,
		Device:   res.Device,
		State:    res.State.String(),
		ExitCode: res.ExitCode,
		Commands: len(res.Commands),
	}
	if res.Err != nil {
		r.Error = res.Err.Error()
	}
	if err := n.Publish(r); err != nil {
		logger.Printf("Failed to publish result: %v", err)
	}
}
