package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/psplink/internal/engine"
	"github.com/bamsammich/psplink/internal/filter"
	"github.com/bamsammich/psplink/internal/transport"
	"github.com/bamsammich/psplink/internal/ui"
)

// pair is one planned file copy.
type pair struct {
	src  string
	dst  string
	size int64
}

func newPushCmd(a *app) *cobra.Command {
	return newCopyCmd(a, true)
}

func newPullCmd(a *app) *cobra.Command {
	return newCopyCmd(a, false)
}

// newCopyCmd builds push (host to console) or pull (console to host).
func newCopyCmd(a *app, push bool) *cobra.Command {
	var (
		tf        transferFlags
		ff        filterFlags
		recursive bool
	)
	cmd := &cobra.Command{
		Use:   "push src... dst",
		Short: "Copy files from this machine to the console",
		Example: `  psplink push game.iso ms0:/ISO
  psplink push -r --ext iso,cso ~/isos ms0:/ISO
  psplink push --verify --bwlimit 4M homebrew/ ms0:/PSP/GAME -r`,
		Args: cobra.MinimumNArgs(2),
	}
	if !push {
		cmd.Use = "pull src... dst"
		cmd.Short = "Copy files from the console to this machine"
		cmd.Example = `  psplink pull ms0:/ISO/game.iso .
  psplink pull -r ms0:/PSP/SAVEDATA backups/`
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		srcs, dst := args[:len(args)-1], args[len(args)-1]
		if err := checkDirection(push, srcs, dst); err != nil {
			return err
		}
		chain, err := ff.chain()
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()
		dev, err := a.connect(ctx)
		if err != nil {
			return err
		}
		r := router(dev)

		pairs, err := plan(ctx, r, srcs, dst, recursive, chain)
		if err != nil {
			return err
		}
		if len(pairs) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "nothing to transfer")
			return nil
		}

		s, err := a.startSession(ctx, cmd, r, &tf)
		if err != nil {
			return err
		}
		for _, p := range pairs {
			s.enqueue(p.src, p.dst, p.size)
		}
		return s.finish()
	}

	tf.register(cmd.Flags())
	ff.register(cmd.Flags())
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "copy directories recursively")
	return cmd
}

// checkDirection rejects a push whose sources are on the console or
// whose destination is local, and the reverse for pull.
func checkDirection(push bool, srcs []string, dst string) error {
	for _, s := range srcs {
		if transport.ParseLocation(s).IsDevice() == push {
			if push {
				return fmt.Errorf("push: source %q must be a local path", s)
			}
			return fmt.Errorf("pull: source %q must be a device path", s)
		}
	}
	if transport.ParseLocation(dst).IsDevice() != push {
		if push {
			return fmt.Errorf("push: destination %q must be a device path (e.g. ms0:/ISO)", dst)
		}
		return fmt.Errorf("pull: destination %q must be a local path", dst)
	}
	return nil
}

// plan expands srcs into file pairs under dst. A single file copied to a
// path that is not an existing directory is copied to that exact name;
// otherwise sources land inside dst under their base names.
func plan(ctx context.Context, r *transport.Router, srcs []string, dst string, recursive bool, chain *filter.Chain) ([]pair, error) {
	dstLoc := transport.ParseLocation(dst)
	dstEp, err := r.For(dstLoc.String())
	if err != nil {
		return nil, err
	}
	into := len(srcs) > 1 || strings.HasSuffix(dst, "/")
	if st, err := dstEp.Stat(ctx, dstLoc.String()); err == nil && st.IsDir {
		into = true
	}

	var pairs []pair
	for _, src := range srcs {
		ep, srcPath, err := r.Resolve(src)
		if err != nil {
			return nil, err
		}
		st, err := ep.Stat(ctx, srcPath)
		if err != nil {
			return nil, err
		}
		base := baseName(transport.ParseLocation(src))

		if !st.IsDir {
			target := dstLoc
			if into {
				target = dstLoc.Join(base)
			}
			pairs = append(pairs, pair{src: srcPath, dst: target.String(), size: st.Size})
			continue
		}
		if !recursive {
			return nil, fmt.Errorf("%s is a directory (use -r)", src)
		}

		root := dstLoc
		if into {
			root = dstLoc.Join(base)
		}
		err = ep.Walk(ctx, srcPath, func(e transport.FileEntry) error {
			if !chain.Allow(e) {
				if e.IsDir {
					return fs.SkipDir
				}
				return nil
			}
			if !e.IsDir {
				pairs = append(pairs, pair{src: e.Path, dst: root.Join(e.RelPath).String(), size: e.Size})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return pairs, nil
}

func baseName(l transport.Location) string {
	if l.IsDevice() {
		return path.Base(l.Path)
	}
	return filepath.Base(l.Path)
}

// routerFor connects to the console only when one of paths is on it.
func (a *app) routerFor(ctx context.Context, paths ...string) (*transport.Router, error) {
	for _, p := range paths {
		if transport.ParseLocation(p).IsDevice() {
			dev, err := a.connect(ctx)
			if err != nil {
				return nil, err
			}
			return router(dev), nil
		}
	}
	return transport.NewRouter(nil, nil), nil
}

func newVerifyCmd(a *app) *cobra.Command {
	var checksum string
	cmd := &cobra.Command{
		Use:   "verify src dst",
		Short: "Compare the checksums of two files",
		Long: `Compare the checksums of two files. Either side may be on the console.
Exits 1 when the contents differ.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := engine.ParseAlgorithm(checksum)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			r, err := a.routerFor(ctx, args...)
			if err != nil {
				return err
			}
			src, dst := transport.ParseLocation(args[0]).String(), transport.ParseLocation(args[1]).String()

			cfg := a.settings.Transfer
			cfg.Checksum = alg
			eng := engine.New(cfg, r)
			defer eng.Close()

			err = eng.VerifyFile(ctx, src, dst)
			if errors.Is(err, engine.ErrIntegrity) {
				return &exitError{code: 1, err: err}
			}
			if err != nil {
				return err
			}
			if !a.quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "OK %s == %s (%s)\n", src, dst, alg)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&checksum, "checksum", string(engine.Blake3), "hash: blake3 or xxhash")
	return cmd
}

func newChecksumCmd(a *app) *cobra.Command {
	var checksum string
	cmd := &cobra.Command{
		Use:   "checksum path...",
		Short: "Print file checksums",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := engine.ParseAlgorithm(checksum)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			r, err := a.routerFor(ctx, args...)
			if err != nil {
				return err
			}

			cfg := a.settings.Transfer
			cfg.Checksum = alg
			eng := engine.New(cfg, r)
			defer eng.Close()

			for _, arg := range args {
				p := transport.ParseLocation(arg).String()
				sum, err := eng.Checksum(ctx, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", sum, p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&checksum, "checksum", string(engine.Blake3), "hash: blake3 or xxhash")
	return cmd
}

func newResumeCmd(a *app) *cobra.Command {
	var (
		tf      transferFlags
		all     bool
		discard bool
	)
	cmd := &cobra.Command{
		Use:   "resume [src dst]",
		Short: "List or continue interrupted transfers",
		Long: `Without arguments, list the transfers recorded in the checkpoint
database. With src and dst (or --all), continue them from the last
recorded offset.`,
		Example: `  psplink resume
  psplink resume game.iso ms0:/ISO/game.iso
  psplink resume --all
  psplink resume --discard game.iso ms0:/ISO/game.iso`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 args, received %d", len(args))
			}
			if all && len(args) != 0 {
				return errors.New("--all takes no arguments")
			}
			if discard && len(args) != 2 {
				return errors.New("--discard needs src and dst")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cp, err := a.openCheckpoint()
			if err != nil {
				return err
			}
			if cp == nil {
				return errors.New("checkpoints are disabled in the configuration")
			}

			var pending []engine.Checkpoint
			switch {
			case len(args) == 2:
				src, dst := transport.ParseLocation(args[0]).String(), transport.ParseLocation(args[1]).String()
				if discard {
					return cp.Clear(src, dst)
				}
				pending = []engine.Checkpoint{{Src: src, Dst: dst}}
			case all:
				if pending, err = cp.List(); err != nil {
					return err
				}
			default:
				return listCheckpoints(cmd, cp)
			}
			if len(pending) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "nothing to resume")
				return nil
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			paths := make([]string, 0, 2*len(pending))
			for _, c := range pending {
				paths = append(paths, c.Src, c.Dst)
			}
			r, err := a.routerFor(ctx, paths...)
			if err != nil {
				return err
			}
			s, err := a.startSession(ctx, cmd, r, &tf)
			if err != nil {
				return err
			}
			for _, c := range pending {
				s.resume(ctx, c.Src, c.Dst)
			}
			return s.finish()
		},
	}
	tf.register(cmd.Flags())
	cmd.Flags().BoolVar(&all, "all", false, "resume every recorded transfer")
	cmd.Flags().BoolVar(&discard, "discard", false, "forget the checkpoint for src and dst")
	return cmd
}

func listCheckpoints(cmd *cobra.Command, cp *engine.CheckpointDB) error {
	list, err := cp.List()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "no interrupted transfers")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tDESTINATION\tDONE\tUPDATED")
	for _, c := range list {
		pct := 0.0
		if c.Size > 0 {
			pct = float64(c.Offset) / float64(c.Size) * 100
		}
		fmt.Fprintf(w, "%s\t%s\t%s of %s (%.0f%%)\t%s\n",
			c.Src, c.Dst, ui.FormatBytes(c.Offset), ui.FormatBytes(c.Size), pct, c.Updated.Format(time.DateTime))
	}
	return w.Flush()
}

func newBenchCmd(a *app) *cobra.Command {
	var (
		size      string
		chunkSize string
	)
	cmd := &cobra.Command{
		Use:   "bench [dir]",
		Short: "Measure USB throughput and suggest a chunk size",
		Long: `Write a scratch file to dir on the console (default ms0:/PSP), read it
back, and remove it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "ms0:/PSP"
			if len(args) == 1 {
				dir = args[0]
			}
			loc, err := transport.MustDevice(dir)
			if err != nil {
				return err
			}
			n, err := filter.ParseSize(size)
			if err != nil {
				return fmt.Errorf("--size: %w", err)
			}
			chunk, err := filter.ParseSize(chunkSize)
			if err != nil {
				return fmt.Errorf("--chunk-size: %w", err)
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			dev, err := a.connect(ctx)
			if err != nil {
				return err
			}
			ep := transport.NewDevice(dev.Protocol())
			result, err := engine.RunBenchmark(ctx, ep, loc.String(), n, int(chunk))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), engine.FormatBenchmark(result))
			return nil
		},
	}
	cmd.Flags().StringVar(&size, "size", "8M", "bytes to move each way")
	cmd.Flags().StringVar(&chunkSize, "chunk-size", "64K", "bytes per chunk")
	return cmd
}
