package provision

import (
	"bytes"
	"errors"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switch-provisioner/internal/notify"
	"switch-provisioner/internal/session"
	"switch-provisioner/internal/transport"
)

const (
	happyTranscript = "Enter password:\n" +
		`Would you like to run "Set Up" to configure the switch? [y/n]` + "\n" +
		">> Main#\n"
	pendingTranscript = "Enter password:\nConfirm seeing above note [y]:\n"
	cleanConfig       = "/* generated\n/c/sys/access\nuser admin\n\n/c/port 1\n/\ntrailer\n"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testOptions(t *testing.T, transcript, config string) Options {
	t.Helper()
	dir := t.TempDir()
	return Options{
		ConfigFile:     writeFile(t, dir, "switch.cfg", config),
		SimulationFile: writeFile(t, dir, "session.txt", transcript),
	}
}

type recorder struct {
	results []notify.Result
	err     error
}

func (r *recorder) Publish(res notify.Result) error {
	r.results = append(r.results, res)
	return r.err
}

func TestRun_HappyPath(t *testing.T) {
	opts := testOptions(t, happyTranscript, cleanConfig)
	rec := &recorder{}
	opts.Notifier = rec

	res := Run(opts, nil)

	require.NoError(t, res.Err)
	assert.Equal(t, ExitOK, res.ExitCode)
	assert.Equal(t, session.Success, res.State)
	assert.Equal(t, []string{"admin", "n", "lines 0", "/c/sys/access", "user admin", "/c/port 1", "/"}, res.Commands)
	assert.NotEmpty(t, res.SessionID)

	require.Len(t, rec.results, 1)
	assert.Equal(t, "SUCCESS", rec.results[0].State)
	assert.Equal(t, 7, rec.results[0].Commands)
	assert.Empty(t, rec.results[0].Error)
}

func TestRun_PendingConfig(t *testing.T) {
	var out bytes.Buffer
	res := Run(testOptions(t, pendingTranscript, cleanConfig), log.New(&out, "", 0))

	require.ErrorIs(t, res.Err, session.ErrPendingConfig)
	assert.Equal(t, ExitFailure, res.ExitCode)
	assert.Equal(t, session.Error, res.State)
	assert.Equal(t, []string{"admin"}, res.Commands)
	assert.Contains(t, out.String(), "pending configuration")
}

func TestRun_EmptyConfig(t *testing.T) {
	res := Run(testOptions(t, happyTranscript, "/* nothing to upload\n"), nil)

	require.ErrorIs(t, res.Err, session.ErrNoValidConfig)
	assert.Equal(t, ExitFailure, res.ExitCode)
	assert.Equal(t, []string{"admin", "n", "lines 0"}, res.Commands)
}

func TestRun_ReplayExhausted(t *testing.T) {
	rec := &recorder{err: errors.New("broker down")}
	opts := testOptions(t, "Enter password:\n", cleanConfig)
	opts.Notifier = rec

	res := Run(opts, nil)

	require.ErrorIs(t, res.Err, session.ErrSourceExhausted)
	assert.Equal(t, ExitFailure, res.ExitCode)
	require.Len(t, rec.results, 1)
	assert.Equal(t, "ERROR", rec.results[0].State)
	assert.NotEmpty(t, rec.results[0].Error)
}

func TestRun_ConfigNotFound(t *testing.T) {
	opts := testOptions(t, happyTranscript, cleanConfig)
	opts.ConfigFile = filepath.Join(t.TempDir(), "missing.cfg")

	called := false
	orig := openTransport
	t.Cleanup(func() { openTransport = orig })
	openTransport = func(Options, *log.Logger) (transport.Transport, string, error) {
		called = true
		return nil, "", errors.New("unreachable")
	}

	res := Run(opts, nil)
	require.ErrorIs(t, res.Err, ErrConfigNotFound)
	assert.Equal(t, ExitFailure, res.ExitCode)
	assert.False(t, called)
}

func TestRun_TransportOpenFailure(t *testing.T) {
	opts := testOptions(t, happyTranscript, cleanConfig)
	opts.SimulationFile = filepath.Join(t.TempDir(), "missing.txt")
	rec := &recorder{}
	opts.Notifier = rec

	res := Run(opts, nil)
	require.ErrorIs(t, res.Err, ErrTransportOpen)
	assert.Equal(t, ExitFailure, res.ExitCode)
	assert.Empty(t, res.Commands)
	assert.Empty(t, rec.results)
}

type panicky struct{ closed int }

func (p *panicky) ReadChunk() (string, error)        { panic("driver bug") }
func (p *panicky) WriteLine(transport.Command) error { return nil }
func (p *panicky) Close() error {
	p.closed++
	return nil
}

func TestRun_FaultStillReleasesTransport(t *testing.T) {
	opts := testOptions(t, happyTranscript, cleanConfig)
	p := &panicky{}

	orig := openTransport
	t.Cleanup(func() { openTransport = orig })
	openTransport = func(Options, *log.Logger) (transport.Transport, string, error) {
		return p, "fake", nil
	}

	res := Run(opts, nil)
	require.ErrorIs(t, res.Err, ErrFault)
	assert.Equal(t, ExitFailure, res.ExitCode)
	assert.Equal(t, "fake", res.Device)
	assert.Equal(t, session.Error, res.State)
	assert.Equal(t, 1, p.closed)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(session.Success))
	for _, s := range []session.State{session.Error, session.WaitPassword, session.Upload} {
		assert.Equal(t, ExitFailure, ExitCode(s))
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 9600, opts.BaudRate)
	assert.Equal(t, session.DefaultTiming(), opts.Timing)
	assert.Equal(t, transport.ReplayLineDelay, opts.ReplayDelay)
}

// consoleFake answers like a switch on a live port: reads come from a
// script and an idle read returns an empty chunk.
type consoleFake struct {
	chunks []string
	sent   []string
	closed int
}

func (c *consoleFake) ReadChunk() (string, error) {
	if len(c.chunks) == 0 {
		return "", nil
	}
	chunk := c.chunks[0]
	c.chunks = c.chunks[1:]
	return chunk, nil
}

func (c *consoleFake) WriteLine(cmd transport.Command) error {
	c.sent = append(c.sent, cmd.Text())
	return nil
}

func (c *consoleFake) Close() error {
	c.closed++
	return nil
}

func stubLive(t *testing.T, resolve func(string) (string, error), open func(transport.SerialConfig, *log.Logger) (transport.Transport, error)) {
	t.Helper()
	origResolve, origOpen := resolvePort, openSerial
	t.Cleanup(func() {
		resolvePort = origResolve
		openSerial = origOpen
	})
	resolvePort = resolve
	openSerial = open
}

func TestRun_LiveConsole(t *testing.T) {
	fake := &consoleFake{chunks: []string{
		"Enter pass", "", "word:",
		"", `Would you like to run "Set Up" to configure the switch? [y/n]`,
		">> Main#",
	}}
	var gotName string
	var gotCfg transport.SerialConfig
	stubLive(t,
		func(name string) (string, error) {
			gotName = name
			return "/dev/ttyUSB0", nil
		},
		func(cfg transport.SerialConfig, _ *log.Logger) (transport.Transport, error) {
			gotCfg = cfg
			return fake, nil
		})

	opts := testOptions(t, "", cleanConfig)
	opts.SimulationFile = ""
	opts.ComPort = "FT232R"
	opts.BaudRate = 115200
	opts.MaxReadErrors = 7

	res := Run(opts, nil)

	require.NoError(t, res.Err)
	assert.Equal(t, ExitOK, res.ExitCode)
	assert.Equal(t, "FT232R", gotName)
	assert.Equal(t, transport.SerialConfig{Port: "/dev/ttyUSB0", BaudRate: 115200, MaxReadErrors: 7}, gotCfg)
	assert.Equal(t, "/dev/ttyUSB0", res.Device)
	assert.Equal(t, []string{"admin", "n", "lines 0", "/c/sys/access", "user admin", "/c/port 1", "/"}, fake.sent)
	assert.Equal(t, 1, fake.closed)
}

func TestRun_LivePendingConfigReleasesPort(t *testing.T) {
	fake := &consoleFake{chunks: []string{"Enter password:", "Confirm seeing above note [y]:"}}
	stubLive(t,
		func(string) (string, error) { return "COM3", nil },
		func(transport.SerialConfig, *log.Logger) (transport.Transport, error) { return fake, nil })

	opts := testOptions(t, "", cleanConfig)
	opts.SimulationFile = ""

	res := Run(opts, nil)
	require.ErrorIs(t, res.Err, session.ErrPendingConfig)
	assert.Equal(t, ExitFailure, res.ExitCode)
	assert.Equal(t, 1, fake.closed)
}

func TestRun_LiveResolveFailure(t *testing.T) {
	opened := false
	stubLive(t,
		func(string) (string, error) { return "", errors.New("no serial ports found") },
		func(transport.SerialConfig, *log.Logger) (transport.Transport, error) {
			opened = true
			return nil, nil
		})

	opts := testOptions(t, "", cleanConfig)
	opts.SimulationFile = ""

	res := Run(opts, nil)
	require.ErrorIs(t, res.Err, ErrTransportOpen)
	assert.Contains(t, res.Err.Error(), "no serial ports found")
	assert.Equal(t, ExitFailure, res.ExitCode)
	assert.False(t, opened)
}

func TestRun_LiveOpenFailure(t *testing.T) {
	stubLive(t,
		func(string) (string, error) { return "COM9", nil },
		func(transport.SerialConfig, *log.Logger) (transport.Transport, error) {
			return nil, errors.New("access denied")
		})

	opts := testOptions(t, "", cleanConfig)
	opts.SimulationFile = ""

	res := Run(opts, nil)
	require.ErrorIs(t, res.Err, ErrTransportOpen)
	assert.Equal(t, ExitFailure, res.ExitCode)
}
