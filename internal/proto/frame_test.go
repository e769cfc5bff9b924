package proto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, byte(CodePing), []byte{1, 2, 3}))
	require.NoError(t, WriteFrame(&buf, byte(StatusOK), nil))

	kind, payload, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, byte(CodePing), kind)
	assert.Equal(t, []byte{1, 2, 3}, payload)

	kind, payload, err = ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, byte(StatusOK), kind)
	assert.Empty(t, payload)
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, byte(CodeWriteChunk), make([]byte, MaxPayload+1))
	require.ErrorIs(t, err, ErrFrameTooLarge)

	// Header claiming an oversized payload.
	_, _, err = ReadFrame(bytes.NewReader([]byte{0x05, 0xff, 0xff, 0xff, 0xff}))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestParseResponseLengthMismatch(t *testing.T) {
	_, err := ParseResponse([]byte{0x00, 0x04, 0x00, 0x00, 0x00, 0xaa})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = ParseResponse([]byte{0x00, 0x00})
	require.ErrorIs(t, err, ErrMalformed)

	resp, err := ParseResponse([]byte{0x02, 0x01, 0x00, 0x00, 0x00, 'x'})
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, resp.Status)
	assert.Equal(t, []byte("x"), resp.Payload)
	assert.Equal(t, 6, resp.N)
}

func TestReadChunkWireLayout(t *testing.T) {
	cmd, err := EncodeRequest(&ReadChunkRequest{Path: "ms0:/a", Offset: 0x0102, Length: 0x10000})
	require.NoError(t, err)
	frame, err := cmd.MarshalBinary()
	require.NoError(t, err)

	want := []byte{
		0x04,                   // code
		0x14, 0x00, 0x00, 0x00, // payload length 20
		0x06, 0x00, 'm', 's', '0', ':', '/', 'a', // path
		0x02, 0x01, 0, 0, 0, 0, 0, 0, // offset
		0x00, 0x00, 0x01, 0x00, // length
	}
	assert.Equal(t, want, frame)
}

func TestWriteChunkTruncateFlag(t *testing.T) {
	cmd, err := EncodeRequest(&WriteChunkRequest{Path: "ms0:/f", Truncate: true, Data: []byte("hi")})
	require.NoError(t, err)

	req, err := DecodeRequest(cmd)
	require.NoError(t, err)
	w, ok := req.(*WriteChunkRequest)
	require.True(t, ok)
	assert.True(t, w.Truncate)
	assert.Equal(t, []byte("hi"), w.Data)
	assert.Equal(t, WriteFlagTruncate, cmd.Payload[2+len("ms0:/f")+8])
}

func TestDecodeRejectsShortAndTrailing(t *testing.T) {
	var info FileInfo
	require.ErrorIs(t, DecodeReply([]byte{1, 2, 3}, &info), ErrMalformed)

	e := &encoder{}
	(&Pong{Seq: 7}).encode(e)
	e.u8(0)
	var pong Pong
	require.ErrorIs(t, DecodeReply(e.buf, &pong), ErrMalformed)
}

func TestDecodeUnknownCode(t *testing.T) {
	_, err := DecodeRequest(Command{Code: 0x7f})
	require.ErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, StatusUnsupported, StatusOf(err))
}

func TestDirListCountBoundsEntries(t *testing.T) {
	e := &encoder{}
	e.u32(1000) // claims far more entries than present
	e.str("a")
	e.bool(false)
	e.u64(1)
	e.i64(0)

	var list DirList
	require.ErrorIs(t, DecodeReply(e.buf, &list), ErrMalformed)
}

func TestSplitDrive(t *testing.T) {
	tests := []struct {
		in, drive, rest string
		ok              bool
	}{
		{"ms0:/ISO/game.iso", "ms0:", "/ISO/game.iso", true},
		{"ms0:", "ms0:", "/", true},
		{"ef0:ISO/../x", "ef0:", "/x", true},
		{"ms0:/../../etc", "ms0:", "/etc", true},
		{"flash0:/kd", "flash0:", "/kd", true},
		{"/home/user/a.iso", "", "", false},
		{"C:/a", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			drive, rest, ok := SplitDrive(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.drive, drive)
			assert.Equal(t, tt.rest, rest)
		})
	}

	assert.Equal(t, "ms0:/ISO/a.iso", Join("ms0:/ISO", "a.iso"))
	assert.Equal(t, "ms0:/ISO", Dir("ms0:/ISO/a.iso"))
	assert.Equal(t, "a.iso", Base("ms0:/ISO/a.iso"))
}
