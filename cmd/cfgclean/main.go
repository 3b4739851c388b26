// Command cfgclean cuts the uploadable /c/sys/access ... / block out of a
// raw switch configuration dump and writes it next to the dump as .cfg.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"switch-provisioner/internal/extract"
	"switch-provisioner/internal/logging"
)

var exitFunc = os.Exit

func main() {
	exitFunc(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "cfgclean <raw-dump>...",
		Short:         "Extract the uploadable configuration block from raw switch dumps",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, closer := logging.New(stdout, logging.Options{NoTimestamp: v.GetBool("no-timestamp")})
			defer closer.Close()

			output := v.GetString("output")
			if output != "" && len(args) > 1 {
				return errors.New("--output needs exactly one input file")
			}

			for _, src := range args {
				lines, err := extract.File(src)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", src, err)
				}
				if len(lines) == 0 {
					logger.Printf("Warning: no valid configuration in %s (no %s line), nothing written", src, extract.StartMarker)
					continue
				}

				dst := output
				if dst == "" {
					dst = extract.CleanedName(src)
				}
				if err := extract.WriteFile(dst, lines); err != nil {
					return err
				}
				logger.Printf("Wrote %d lines from %s to %s", len(lines), src, dst)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringP("output", "o", "", "Output file (default: input name with .cfg extension)")
	f.Bool("no-timestamp", false, "Disable timestamp in log output")

	_ = v.BindPFlags(f)
	v.SetEnvPrefix("CFGCLEAN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}
