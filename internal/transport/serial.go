package transport

import (
	"fmt"
	"io"
	"log"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the switch console default.
const DefaultBaudRate = 9600

// SerialConfig describes the live console line.
type SerialConfig struct {
	Port     string
	BaudRate int
	// MaxReadErrors caps consecutive failed reads. Zero means no cap.
	MaxReadErrors int
}

// port is the part of serial.Port the transport uses.
type port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

var openPort = func(name string, mode *serial.Mode) (port, error) {
	return serial.Open(name, mode)
}

// Serial is the live console transport.
type Serial struct {
	port       port
	name       string
	maxErrors  int
	readErrors int
	buf        []byte
	now        func() time.Time
	sleep      func(time.Duration)
	logger     *log.Logger
}

// OpenSerial opens the console at 8N1 without flow control. A read with
// nothing buffered returns after PollBackoff with an empty chunk.
func OpenSerial(cfg SerialConfig, logger *log.Logger) (*Serial, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := openPort(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}
	if err := p.SetReadTimeout(PollBackoff); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Port, err)
	}

	logger.Printf("Connected to %s at %d baud", cfg.Port, cfg.BaudRate)

	return &Serial{
		port:      p,
		name:      cfg.Port,
		maxErrors: cfg.MaxReadErrors,
		buf:       make([]byte, 4096),
		now:       time.Now,
		sleep:     time.Sleep,
		logger:    logger,
	}, nil
}

// ReadChunk returns whatever the port has buffered. Read errors are
// transient: they are logged, waited out for PollBackoff and reported as an
// empty chunk until MaxReadErrors consecutive failures have been seen.
// Each non-empty chunk is logged as one RX line, so a prompt split across
// reads shows up split in the log too.
func (s *Serial) ReadChunk() (string, error) {
	n, err := s.port.Read(s.buf)
	if err != nil {
		s.readErrors++
		s.logger.Printf("Read error on %s (%d in a row): %v", s.name, s.readErrors, err)
		if s.maxErrors > 0 && s.readErrors >= s.maxErrors {
			return "", fmt.Errorf("%w on %s: %v", ErrReadErrorLimit, s.name, err)
		}
		// A dead port fails instantly; don't spin on it.
		s.sleep(PollBackoff)
		return "", nil
	}
	s.readErrors = 0
	if n == 0 {
		return "", nil
	}

	chunk := string(s.buf[:n])
	s.logger.Printf("RX: %q", chunk)
	return chunk, nil
}

// WriteLine sends cmd followed by CRLF.
func (s *Serial) WriteLine(cmd Command) error {
	s.logger.Printf("TX: %q", string(cmd.Bytes()))

	start := s.now()
	if _, err := s.port.Write(cmd.Bytes()); err != nil {
		return fmt.Errorf("failed to send data: %w", err)
	}
	if took := s.now().Sub(start); took > IOTimeout {
		s.logger.Printf("Slow write on %s: %s", s.name, took)
	}
	return nil
}

// Close releases the port.
func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
