package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	defer a.teardown()

	root := newRootCmd(a)
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", exitErr.err)
			}
			return exitErr.code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "psplink",
		Short: "Manage a PSP over USB: files, games and resumable transfers",
		Long: `psplink talks to a PSP in USB mode. It lists and manages files on the
memory stick, shows battery and storage, and pushes or pulls files in
fixed-size chunks with retry, verification and resume.

Device paths look like ms0:/ISO/game.iso (or psp://ms0/ISO/game.iso);
everything else is a local path.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.simDir, "sim", "", "use a simulated console backed by DIR instead of USB")
	pf.StringVar(&a.vid, "vid", "", "USB vendor ID (default 0x054C)")
	pf.StringVar(&a.pid, "pid", "", "USB product ID (default 0x01C9)")
	pf.StringVar(&a.usbPath, "usb-path", "", "connect to the device at this USB path (bus-port.port)")
	pf.StringVar(&a.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/psplink/config.toml)")
	pf.CountVarP(&a.verbose, "verbose", "v", "verbose logging (repeat for debug)")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "suppress all output except errors")
	pf.StringVar(&a.logFile, "log", "", "write structured JSON log to FILE")

	root.AddCommand(
		newDevicesCmd(a),
		newInfoCmd(a),
		newBatteryCmd(a),
		newDrivesCmd(a),
		newUSBModeCmd(a),
		newLsCmd(a),
		newGamesCmd(a),
		newMkdirCmd(a),
		newRmCmd(a),
		newMvCmd(a),
		newPushCmd(a),
		newPullCmd(a),
		newVerifyCmd(a),
		newChecksumCmd(a),
		newResumeCmd(a),
		newBenchCmd(a),
		newDocsCmd(),
	)
	return root
}

// exitError carries a process exit code, optionally with the error to
// print.
type exitError struct {
	err  error
	code int
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }
