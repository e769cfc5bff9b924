package transport_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/psplink/internal/transport"
)

func TestParseLocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		wantDrive string
		wantPath  string
	}{
		{
			name:     "absolute path",
			input:    "/home/user/games",
			wantPath: "/home/user/games",
		},
		{
			name:     "relative path",
			input:    "games/lumines.iso",
			wantPath: "games/lumines.iso",
		},
		{
			name:     "dot-relative path with drive-like name",
			input:    "./ms0:/ISO",
			wantPath: "./ms0:/ISO",
		},
		{
			name:     "parent-relative path",
			input:    "../games",
			wantPath: "../games",
		},
		{
			name:      "memory stick",
			input:     "ms0:/ISO/game.iso",
			wantDrive: "ms0:",
			wantPath:  "/ISO/game.iso",
		},
		{
			name:      "internal flash relative",
			input:     "ef0:ISO",
			wantDrive: "ef0:",
			wantPath:  "/ISO",
		},
		{
			name:      "bare drive",
			input:     "ms0:",
			wantDrive: "ms0:",
			wantPath:  "/",
		},
		{
			name:      "dot segments cleaned",
			input:     "ms0:/ISO/../PSP/GAME/",
			wantDrive: "ms0:",
			wantPath:  "/PSP/GAME",
		},
		{
			name:      "url form",
			input:     "psp://ms0/ISO/game.iso",
			wantDrive: "ms0:",
			wantPath:  "/ISO/game.iso",
		},
		{
			name:     "url without drive",
			input:    "psp:///ISO",
			wantPath: "psp:///ISO",
		},
		{
			name:     "windows drive letter",
			input:    "C:/games",
			wantPath: "C:/games",
		},
		{
			name:     "host-style colon",
			input:    "nas:/backup",
			wantPath: "nas:/backup",
		},
		{
			name:     "colon after separator",
			input:    "dir/ms0:path",
			wantPath: "dir/ms0:path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			loc := transport.ParseLocation(tt.input)
			assert.Equal(t, tt.wantDrive, loc.Drive, "Drive")
			assert.Equal(t, tt.wantPath, loc.Path, "Path")
			assert.Equal(t, tt.wantDrive != "", loc.IsDevice())
		})
	}
}

func TestLocation_StringAndJoin(t *testing.T) {
	t.Parallel()

	dev := transport.Location{Drive: "ms0:", Path: "/ISO"}
	assert.Equal(t, "ms0:/ISO", dev.String())
	assert.Equal(t, "ms0:/ISO/sub/a.iso", dev.Join("sub/a.iso").String())

	local := transport.Location{Path: "/tmp/out"}
	assert.Equal(t, "/tmp/out", local.String())
	assert.Equal(t, "/tmp/out/sub/a.iso", local.Join("sub/a.iso").String())

	_, err := transport.MustDevice("/tmp/out")
	assert.Error(t, err)
	loc, err := transport.MustDevice("ms0:/ISO")
	assert.NoError(t, err)
	assert.Equal(t, "ms0:/ISO", loc.String())
}
