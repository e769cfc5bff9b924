package proto

import (
	"path"
	"regexp"
	"strings"
)

// Device paths look like "ms0:/PSP/GAME" or "ef0:/ISO/game.iso": a drive
// name of letters and digits followed by a colon.
var drivePrefix = regexp.MustCompile(`^([a-z]{2,5}[0-9]+):`)

// DefaultDrive is the Memory Stick.
const DefaultDrive = "ms0:"

// IsDevicePath reports whether p names a location on the device.
func IsDevicePath(p string) bool {
	return drivePrefix.MatchString(p)
}

// SplitDrive splits a device path into its drive and a cleaned absolute
// remainder, so "ms0:ISO/../a.iso" becomes "ms0:" and "/a.iso".
func SplitDrive(p string) (drive, rest string, ok bool) {
	m := drivePrefix.FindStringSubmatch(p)
	if m == nil {
		return "", "", false
	}
	rest = path.Clean("/" + strings.TrimPrefix(p, m[0]))
	return m[1] + ":", rest, true
}

// Clean normalizes a device path. Non-device paths are returned unchanged.
func Clean(p string) string {
	drive, rest, ok := SplitDrive(p)
	if !ok {
		return p
	}
	return drive + rest
}

// Join joins device path elements with forward slashes.
func Join(base string, elem ...string) string {
	drive, rest, ok := SplitDrive(base)
	if !ok {
		return path.Join(append([]string{base}, elem...)...)
	}
	return drive + path.Join(append([]string{rest}, elem...)...)
}

// Dir returns all but the last element of a device path.
func Dir(p string) string {
	drive, rest, ok := SplitDrive(p)
	if !ok {
		return path.Dir(p)
	}
	return drive + path.Dir(rest)
}

// Base returns the last element of a device path.
func Base(p string) string {
	_, rest, ok := SplitDrive(p)
	if !ok {
		return path.Base(p)
	}
	return path.Base(rest)
}
