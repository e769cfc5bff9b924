package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/psplink/internal/engine"
	"github.com/bamsammich/psplink/internal/filter"
)

// transferFlags are shared by every command that moves data. Flags the
// user did not set leave the configured values alone.
type transferFlags struct {
	chunkSize    string
	checksum     string
	bwlimit      string
	onCancel     string
	retryDelay   time.Duration
	retries      int
	verify       bool
	noCheckpoint bool
	noProgress   bool
}

func (f *transferFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.chunkSize, "chunk-size", "64K", "bytes per chunk (e.g. 32K, 1M)")
	fs.IntVar(&f.retries, "retries", engine.DefaultRetryCount, "attempts per chunk, including the first")
	fs.DurationVar(&f.retryDelay, "retry-delay", engine.DefaultRetryDelay, "pause between chunk attempts")
	fs.BoolVar(&f.verify, "verify", false, "hash source and destination after each file")
	fs.StringVar(&f.checksum, "checksum", string(engine.Blake3), "verification hash: blake3 or xxhash")
	fs.StringVar(&f.bwlimit, "bwlimit", "", "bandwidth limit per second (e.g. 2M)")
	fs.StringVar(&f.onCancel, "on-cancel", "keep", "what to do with a cancelled file: keep or remove")
	fs.BoolVar(&f.noCheckpoint, "no-checkpoint", false, "do not record progress for resume")
	fs.BoolVar(&f.noProgress, "no-progress", false, "disable the progress display")
}

// apply overrides cfg with the flags set on cmd.
func (f *transferFlags) apply(cmd *cobra.Command, cfg *engine.Config) error {
	fs := cmd.Flags()
	if fs.Changed("chunk-size") {
		n, err := filter.ParseSize(f.chunkSize)
		if err != nil {
			return fmt.Errorf("--chunk-size: %w", err)
		}
		if n <= 0 {
			return fmt.Errorf("--chunk-size: %w", engine.ErrInvalidChunkSize)
		}
		cfg.ChunkSize = int(n)
	}
	if fs.Changed("retries") {
		if f.retries < 1 {
			return fmt.Errorf("--retries: %d: must be at least 1", f.retries)
		}
		cfg.RetryCount = f.retries
	}
	if fs.Changed("retry-delay") {
		cfg.RetryDelay = f.retryDelay
	}
	if fs.Changed("verify") {
		cfg.Verify = f.verify
	}
	if fs.Changed("checksum") {
		alg, err := engine.ParseAlgorithm(f.checksum)
		if err != nil {
			return fmt.Errorf("--checksum: %w", err)
		}
		cfg.Checksum = alg
	}
	if fs.Changed("bwlimit") {
		n, err := filter.ParseSize(f.bwlimit)
		if err != nil {
			return fmt.Errorf("--bwlimit: %w", err)
		}
		cfg.BWLimit = n
	}
	if fs.Changed("on-cancel") {
		p, err := engine.ParseCancelPolicy(f.onCancel)
		if err != nil {
			return fmt.Errorf("--on-cancel: %w", err)
		}
		cfg.CancelPolicy = p
	}
	return nil
}

// filterFlags builds a filter.Chain. Include and exclude rules keep the
// order they were given on the command line.
type filterFlags struct {
	rules    []filterRule
	exts     []string
	minSize  string
	maxSize  string
	keepJunk bool
}

type filterRule struct {
	pattern string
	include bool
	file    bool // pattern names a rules file
}

// ruleValue appends to a shared rule list so interleaved --include,
// --exclude and --filter flags stay ordered.
type ruleValue struct {
	rules   *[]filterRule
	kind    string
	include bool
	file    bool
}

func (v *ruleValue) Set(s string) error {
	*v.rules = append(*v.rules, filterRule{pattern: s, include: v.include, file: v.file})
	return nil
}

func (v *ruleValue) String() string {
	var parts []string
	for _, r := range *v.rules {
		if r.include == v.include && r.file == v.file {
			parts = append(parts, r.pattern)
		}
	}
	return strings.Join(parts, ",")
}

func (v *ruleValue) Type() string { return v.kind }

func (f *filterFlags) register(fs *pflag.FlagSet) {
	fs.Var(&ruleValue{rules: &f.rules, kind: "pattern"}, "exclude", "skip paths matching PATTERN (repeatable)")
	fs.Var(&ruleValue{rules: &f.rules, kind: "pattern", include: true}, "include", "keep paths matching PATTERN even if a later rule excludes them (repeatable)")
	fs.Var(&ruleValue{rules: &f.rules, kind: "file", file: true}, "filter", "read +/- rules from FILE (repeatable)")
	fs.StringSliceVar(&f.exts, "ext", nil, "only transfer files with these extensions (e.g. iso,cso)")
	fs.StringVar(&f.minSize, "min-size", "", "skip files smaller than SIZE")
	fs.StringVar(&f.maxSize, "max-size", "", "skip files larger than SIZE")
	fs.BoolVar(&f.keepJunk, "keep-junk", false, "do not skip .DS_Store, Thumbs.db and similar host files")
}

func (f *filterFlags) chain() (*filter.Chain, error) {
	c := filter.Default()
	if f.keepJunk {
		c = filter.NewChain()
	}
	for _, r := range f.rules {
		var err error
		switch {
		case r.file:
			err = c.LoadFile(r.pattern)
		case r.include:
			err = c.Include(r.pattern)
		default:
			err = c.Exclude(r.pattern)
		}
		if err != nil {
			return nil, err
		}
	}
	if len(f.exts) > 0 {
		c.Extensions(f.exts...)
	}
	if f.minSize != "" {
		n, err := filter.ParseSize(f.minSize)
		if err != nil {
			return nil, fmt.Errorf("--min-size: %w", err)
		}
		c.SetMinSize(n)
	}
	if f.maxSize != "" {
		n, err := filter.ParseSize(f.maxSize)
		if err != nil {
			return nil, fmt.Errorf("--max-size: %w", err)
		}
		c.SetMaxSize(n)
	}
	return c, nil
}
