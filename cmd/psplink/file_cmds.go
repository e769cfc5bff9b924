package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/psplink/internal/transport"
	"github.com/bamsammich/psplink/internal/ui"
)

func newLsCmd(a *app) *cobra.Command {
	var (
		recursive bool
		long      bool
	)
	cmd := &cobra.Command{
		Use:   "ls [dir]",
		Short: "List a directory on the console",
		Example: `  psplink ls ms0:/ISO
  psplink ls -rl psp://ms0/PSP/SAVEDATA`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "ms0:/"
			if len(args) == 1 {
				dir = args[0]
			}
			loc, err := transport.MustDevice(dir)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			dev, err := a.connect(ctx)
			if err != nil {
				return err
			}
			entries, err := dev.ListDirectory(ctx, loc.String(), recursive)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !long {
				for _, e := range entries {
					name := e.Name
					if recursive {
						name = e.Path
					}
					if e.IsDir {
						name += "/"
					}
					fmt.Fprintln(out, name)
				}
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
			for _, e := range entries {
				name := e.Name
				if recursive {
					name = e.Path
				}
				size := ui.FormatBytes(e.Size)
				if e.IsDir {
					name += "/"
					size = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t  %s\n", size, e.ModTime.Format(time.DateTime), name)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "list subdirectories too")
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show size and modification time")
	return cmd
}

func newGamesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "games",
		Short: "List disc images in the ISO directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			dev, err := a.connect(ctx)
			if err != nil {
				return err
			}
			games, err := dev.Games(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(games) == 0 {
				fmt.Fprintf(out, "no games in %s\n", a.settings.Device.ISOPath)
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tFORMAT\tSIZE\tDISC")
			var total int64
			for _, g := range games {
				total += g.Size
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", g.ID, g.Title, g.Format, ui.FormatBytes(g.Size), g.DiscID)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d games, %s\n", len(games), ui.FormatBytes(total))
			return nil
		},
	}
}

func newMkdirCmd(a *app) *cobra.Command {
	var parents bool
	cmd := &cobra.Command{
		Use:   "mkdir dir...",
		Short: "Create directories on the console",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			locs, err := deviceArgs(args)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			dev, err := a.connect(ctx)
			if err != nil {
				return err
			}
			for _, loc := range locs {
				if parents {
					err = dev.CreateDirectories(ctx, loc.String())
				} else {
					err = dev.CreateDirectory(ctx, loc.String())
				}
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "create missing parent directories")
	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "rm path...",
		Short: "Delete files or directories on the console",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			locs, err := deviceArgs(args)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			dev, err := a.connect(ctx)
			if err != nil {
				return err
			}
			for _, loc := range locs {
				p := loc.String()
				isDir, err := dev.DirectoryExists(ctx, p)
				if err != nil {
					return err
				}
				if isDir {
					err = dev.DeleteDirectory(ctx, p, recursive)
				} else {
					err = dev.DeleteFile(ctx, p)
				}
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "delete directories and their contents")
	return cmd
}

func newMvCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mv src dst",
		Short: "Move or rename a file on the console",
		Long: `Move or rename a file on the console. Moves within one drive are
renames; moves between drives copy the file and delete the source.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			locs, err := deviceArgs(args)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			dev, err := a.connect(ctx)
			if err != nil {
				return err
			}
			return dev.Move(ctx, locs[0].String(), locs[1].String())
		},
	}
}

func deviceArgs(args []string) ([]transport.Location, error) {
	locs := make([]transport.Location, 0, len(args))
	for _, arg := range args {
		loc, err := transport.MustDevice(arg)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	return locs, nil
}
