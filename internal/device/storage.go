package device

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"github.com/bamsammich/psplink/internal/proto"
)

// LargeGameSize is the size of the largest single-layer UMD image.
const LargeGameSize = 4 << 30

// Drive is one storage drive with its usage.
type Drive struct {
	Name  string
	Path  string
	Type  string
	Total uint64
	Free  uint64
	Used  uint64
}

// UsagePercent returns used space as a percentage of the total.
func (dr Drive) UsagePercent() float64 {
	if dr.Total == 0 {
		return 0
	}
	return float64(dr.Used) / float64(dr.Total) * 100
}

// FitsLargeGame reports whether a full-size image still fits.
func (dr Drive) FitsLargeGame() bool { return dr.Free >= LargeGameSize }

// EstimatedGames is how many 1 GB images fit in the free space.
func (dr Drive) EstimatedGames() uint64 { return dr.Free / (1 << 30) }

// Drives lists the storage drives.
func (d *Device) Drives(ctx context.Context) ([]Drive, error) {
	var raw []proto.Drive
	err := d.do(ctx, func() error {
		var err error
		raw, err = d.proto.Drives(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]Drive, 0, len(raw))
	for _, r := range raw {
		dr := Drive{Name: r.Name, Path: r.Path, Type: r.Type, Total: r.Total, Free: min(r.Free, r.Total)}
		dr.Used = dr.Total - dr.Free
		out = append(out, dr)
	}
	return out, nil
}

// Drive returns the drive matching name, which may be given as "ms0",
// "ms0:" or "ms0:/". An empty name selects the Memory Stick.
func (d *Device) Drive(ctx context.Context, name string) (Drive, error) {
	want := driveKey(name)
	drives, err := d.Drives(ctx)
	if err != nil {
		return Drive{}, err
	}
	for _, dr := range drives {
		if driveKey(dr.Path) == want || driveKey(dr.Name) == want {
			return dr, nil
		}
	}
	return Drive{}, fmt.Errorf("drive %s: %w", want, fs.ErrNotExist)
}

func driveKey(s string) string {
	if s == "" {
		return proto.DefaultDrive
	}
	s = strings.TrimSuffix(s, "/")
	if !strings.HasSuffix(s, ":") {
		s += ":"
	}
	return strings.ToLower(s)
}

// TotalSpace returns the capacity of drive in bytes.
func (d *Device) TotalSpace(ctx context.Context, drive string) (uint64, error) {
	dr, err := d.Drive(ctx, drive)
	return dr.Total, err
}

// FreeSpace returns the free bytes on drive.
func (d *Device) FreeSpace(ctx context.Context, drive string) (uint64, error) {
	dr, err := d.Drive(ctx, drive)
	return dr.Free, err
}

// UsedSpace returns the used bytes on drive.
func (d *Device) UsedSpace(ctx context.Context, drive string) (uint64, error) {
	dr, err := d.Drive(ctx, drive)
	return dr.Used, err
}

// UsagePercent returns the used share of drive as a percentage.
func (d *Device) UsagePercent(ctx context.Context, drive string) (float64, error) {
	dr, err := d.Drive(ctx, drive)
	return dr.UsagePercent(), err
}
