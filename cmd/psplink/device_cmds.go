package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bamsammich/psplink/internal/ui"
)

func newDevicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List attached consoles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dev, err := a.newDevice()
			if err != nil {
				return err
			}
			defer dev.Close()

			descs, err := dev.Enumerate()
			if err != nil {
				return err
			}
			if len(descs) == 0 {
				return &exitError{code: 3, err: fmt.Errorf("no console found")}
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tID\tPRODUCT\tSERIAL\tUSB")
			for _, d := range descs {
				fmt.Fprintf(w, "%s\t%04x:%04x\t%s\t%s\t%s\n",
					d.Path, d.VendorID, d.ProductID, d.Product, d.Serial, d.USBVersion)
			}
			return w.Flush()
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the console's identity and connection status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			dev, err := a.connect(ctx)
			if err != nil {
				return err
			}
			id := dev.Identity()
			rtt, err := dev.Ping(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Name:\t%s\n", id.Name)
			fmt.Fprintf(w, "Model:\t%s\n", id.Model)
			fmt.Fprintf(w, "Firmware:\t%s\n", id.Firmware)
			fmt.Fprintf(w, "Serial:\t%s\n", id.Serial)
			if id.Region != "" {
				fmt.Fprintf(w, "Region:\t%s\n", id.Region)
			}
			fmt.Fprintf(w, "USB:\t%04x:%04x (USB %s)\n", id.VendorID, id.ProductID, id.USBVersion)
			fmt.Fprintf(w, "Status:\t%s\n", dev.StatusString())
			fmt.Fprintf(w, "Latency:\t%s\n", rtt)
			return w.Flush()
		},
	}
}

func newBatteryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "battery",
		Short: "Show the battery level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			dev, err := a.connect(ctx)
			if err != nil {
				return err
			}
			b, err := dev.Battery(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), b.Status())
			return nil
		},
	}
}

func newDrivesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "drives",
		Short: "Show storage drives and their usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			dev, err := a.connect(ctx)
			if err != nil {
				return err
			}
			drives, err := dev.Drives(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DRIVE\tTYPE\tSIZE\tUSED\tFREE\tUSE%\t")
			for _, d := range drives {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.0f%%\t%s\n",
					d.Path, d.Type,
					ui.FormatBytes(int64(d.Total)), ui.FormatBytes(int64(d.Used)), //nolint:gosec // drive sizes fit int64
					ui.FormatBytes(int64(d.Free)), //nolint:gosec // drive sizes fit int64
					d.UsagePercent(), ui.ProgressBar(d.UsagePercent()/100, 10))
			}
			return w.Flush()
		},
	}
}

func newUSBModeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "usb-mode on|off",
		Short:     "Switch the console in or out of USB bulk mode",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			dev, err := a.connect(ctx)
			if err != nil {
				return err
			}
			switch args[0] {
			case "on":
				err = dev.EnterUSBMode(ctx)
			case "off":
				err = dev.ExitUSBMode(ctx)
			default:
				return fmt.Errorf("usb-mode: want on or off, got %q", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dev.StatusString())
			return nil
		},
	}
}
