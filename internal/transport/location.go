package transport

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/bamsammich/psplink/internal/proto"
)

// Location represents a parsed source or destination argument.
type Location struct {
	Drive string // "ms0:" for device locations, empty for local ones
	Path  string
}

// IsDevice returns true if the location refers to console storage.
func (l Location) IsDevice() bool {
	return l.Drive != ""
}

// String returns the canonical form: "ms0:/ISO/a.iso" or a local path.
func (l Location) String() string {
	if !l.IsDevice() {
		return l.Path
	}
	return l.Drive + l.Path
}

// Join appends slash-separated elements to the location.
func (l Location) Join(rel string) Location {
	if l.IsDevice() {
		return Location{Drive: l.Drive, Path: path.Join(l.Path, rel)}
	}
	return Location{Path: filepath.Join(l.Path, filepath.FromSlash(rel))}
}

// ParseLocation parses a CLI argument into a Location.
//
// Supported formats:
//   - /absolute/path            → local
//   - relative/path             → local
//   - ms0:/ISO/game.iso         → device drive ms0
//   - ef0:ISO                   → device, path made absolute
//   - psp://ms0/ISO/game.iso    → device URL form
//
// Ambiguity rule: only a drive name (letters then digits) before the first
// colon makes a device path, so "C:/x", "host:path" and "./ms0:x" are local.
func ParseLocation(arg string) Location {
	if strings.HasPrefix(arg, "psp://") {
		return parseDeviceURL(arg)
	}

	if filepath.IsAbs(arg) || strings.HasPrefix(arg, "./") || strings.HasPrefix(arg, "../") {
		return Location{Path: arg}
	}

	drive, rest, ok := proto.SplitDrive(arg)
	if !ok {
		return Location{Path: arg}
	}
	return Location{Drive: drive, Path: rest}
}

// parseDeviceURL parses psp://drive/path.
func parseDeviceURL(raw string) Location {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Location{Path: raw}
	}
	drive, rest, ok := proto.SplitDrive(u.Host + ":" + u.Path)
	if !ok {
		return Location{Path: raw}
	}
	return Location{Drive: drive, Path: rest}
}

// MustDevice parses arg and fails unless it names a device location.
func MustDevice(arg string) (Location, error) {
	loc := ParseLocation(arg)
	if !loc.IsDevice() {
		return Location{}, fmt.Errorf("%q is not a device path (expected e.g. ms0:/ISO)", arg)
	}
	return loc, nil
}
