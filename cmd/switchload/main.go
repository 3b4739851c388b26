// Command switchload logs in to a factory-fresh switch over its serial
// console, declines the setup wizard and uploads a cleaned configuration.
//
// With --simulation-file the console is replayed from a captured transcript
// instead of a live port, which is how the handshake is tested.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"switch-provisioner/internal/logging"
	"switch-provisioner/internal/notify"
	"switch-provisioner/internal/provision"
	"switch-provisioner/internal/transport"
)

// exitFunc allows tests to stub process exit behavior
var exitFunc = os.Exit

// exitCode carries a non-zero status out of RunE.
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

func main() {
	exitFunc(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		var code exitCode
		if errors.As(err, &code) {
			return int(code)
		}
		fmt.Fprintln(stderr, err)
		return provision.ExitFailure
	}
	return provision.ExitOK
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "switchload --config-file <switch.cfg> [--com-port <port>] [--simulation-file <transcript>]",
		Short: "Provision a switch's initial configuration over its serial console",
		Long: "Waits for the console login prompt, logs in, declines the setup wizard, disables paging\n" +
			"and uploads the /c/sys/access ... / block of the configuration file line by line.\n" +
			"Exits 1 if the switch reports a pending configuration; clear it by hand first.",
		Example: "  switchload --com-port /dev/ttyUSB0 --config-file sw1.cfg\n" +
			"  switchload --config-file sw1.cfg --simulation-file captured.txt",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile := v.GetString("config-file")
			if configFile == "" {
				// Not an error: print usage and exit 0.
				return cmd.Usage()
			}

			logger, closer := logging.New(stdout, logging.Options{
				NoTimestamp: v.GetBool("no-timestamp"),
				File:        v.GetString("log-file"),
			})
			defer closer.Close()

			opts := provision.DefaultOptions()
			opts.ComPort = v.GetString("com-port")
			opts.BaudRate = v.GetInt("baud-rate")
			opts.ConfigFile = configFile
			opts.SimulationFile = v.GetString("simulation-file")
			opts.MaxReadErrors = v.GetInt("max-read-errors")

			if url := v.GetString("mqtt"); url != "" {
				m, err := notify.DialMQTT(notify.MQTTConfig{
					URL:      url,
					Username: v.GetString("mqtt-user"),
					Password: v.GetString("mqtt-password"),
				}, logger)
				if err != nil {
					logger.Printf("Result publishing disabled: %v", err)
				} else {
					defer m.Close()
					opts.Notifier = m
				}
			}

			res := provision.Run(opts, logger)
			if res.ExitCode != provision.ExitOK {
				return exitCode(res.ExitCode)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.String("com-port", "", "Serial port name or USB adapter name (live mode; first USB port if empty)")
	f.Int("baud-rate", transport.DefaultBaudRate, "Serial baud rate")
	f.String("config-file", "", "Configuration file to upload (raw dumps are cleaned on the fly)")
	f.String("simulation-file", "", "Replay this captured console transcript instead of opening a port")
	f.Int("max-read-errors", 0, "Give up after this many consecutive serial read errors (0 = never)")
	f.String("mqtt", "", "Publish the result to mqtt://broker[:port]/topic (sent to <topic>/status)")
	f.String("mqtt-user", "", "MQTT username")
	f.String("mqtt-password", "", "MQTT password (or set SWITCHLOAD_MQTT_PASSWORD)")
	f.String("log-file", "", "Also write status output to this file (rotated)")
	f.Bool("no-timestamp", false, "Disable timestamp in log output")

	_ = v.BindPFlags(f)
	v.SetEnvPrefix("SWITCHLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}
