package proto

import (
	"fmt"
	"time"
)

// Code identifies a device command. Values are fixed by the device firmware.
type Code uint8

const (
	CodeDeviceInfo      Code = 0x01
	CodeDriveInfo       Code = 0x02
	CodeListDirectory   Code = 0x03
	CodeReadChunk       Code = 0x04
	CodeWriteChunk      Code = 0x05
	CodeDelete          Code = 0x06
	CodeCreateDirectory Code = 0x07
	CodeDeleteDirectory Code = 0x08
	CodeRename          Code = 0x09
	CodeFileInfo        Code = 0x0A
	CodeBatteryStatus   Code = 0x0B
	CodePing            Code = 0x0C
	CodeEnterBulkMode   Code = 0x0D
	CodeExitBulkMode    Code = 0x0E
)

var codeNames = map[Code]string{
	CodeDeviceInfo:      "device-info",
	CodeDriveInfo:       "drive-info",
	CodeListDirectory:   "list-directory",
	CodeReadChunk:       "read-chunk",
	CodeWriteChunk:      "write-chunk",
	CodeDelete:          "delete",
	CodeCreateDirectory: "create-directory",
	CodeDeleteDirectory: "delete-directory",
	CodeRename:          "rename",
	CodeFileInfo:        "file-info",
	CodeBatteryStatus:   "battery-status",
	CodePing:            "ping",
	CodeEnterBulkMode:   "enter-bulk-mode",
	CodeExitBulkMode:    "exit-bulk-mode",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(0x%02x)", uint8(c))
}

// Admin reports whether c is a short administrative command that may travel
// over control transfers.
func (c Code) Admin() bool {
	switch c {
	case CodePing, CodeBatteryStatus, CodeEnterBulkMode, CodeExitBulkMode:
		return true
	default:
		return false
	}
}

// Status is the first byte of every response frame.
type Status uint8

const (
	StatusOK              Status = 0x00
	StatusError           Status = 0x01
	StatusNotFound        Status = 0x02
	StatusExists          Status = 0x03
	StatusUnsupported     Status = 0x04
	StatusBusy            Status = 0x05
	StatusInvalidArgument Status = 0x06
	StatusNotEmpty        Status = 0x07
	StatusNoSpace         Status = 0x08
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusNotFound:
		return "not found"
	case StatusExists:
		return "already exists"
	case StatusUnsupported:
		return "unsupported"
	case StatusBusy:
		return "busy"
	case StatusInvalidArgument:
		return "invalid argument"
	case StatusNotEmpty:
		return "directory not empty"
	case StatusNoSpace:
		return "no space left"
	default:
		return fmt.Sprintf("status(0x%02x)", uint8(s))
	}
}

// Request is a command payload. Each variant carries its own code.
type Request interface {
	Code() Code
	encode(e *encoder)
	decode(d *decoder)
}

// Reply is a response payload.
type Reply interface {
	encode(e *encoder)
	decode(d *decoder)
}

// requests maps each code to a constructor for its request variant.
var requests = map[Code]func() Request{
	CodeDeviceInfo:      func() Request { return &DeviceInfoRequest{} },
	CodeDriveInfo:       func() Request { return &DriveInfoRequest{} },
	CodeListDirectory:   func() Request { return &ListDirRequest{} },
	CodeReadChunk:       func() Request { return &ReadChunkRequest{} },
	CodeWriteChunk:      func() Request { return &WriteChunkRequest{} },
	CodeDelete:          func() Request { return &DeleteRequest{} },
	CodeCreateDirectory: func() Request { return &MkdirRequest{} },
	CodeDeleteDirectory: func() Request { return &RmdirRequest{} },
	CodeRename:          func() Request { return &RenameRequest{} },
	CodeFileInfo:        func() Request { return &FileInfoRequest{} },
	CodeBatteryStatus:   func() Request { return &BatteryRequest{} },
	CodePing:            func() Request { return &PingRequest{} },
	CodeEnterBulkMode:   func() Request { return &EnterBulkModeRequest{} },
	CodeExitBulkMode:    func() Request { return &ExitBulkModeRequest{} },
}

// EncodeRequest builds the command frame for req.
func EncodeRequest(req Request) (Command, error) {
	e := &encoder{}
	req.encode(e)
	if len(e.buf) > MaxPayload {
		return Command{}, fmt.Errorf("%s: %w", req.Code(), ErrFrameTooLarge)
	}
	return Command{Code: req.Code(), Payload: e.buf}, nil
}

// DecodeRequest parses the payload of cmd into its request variant.
func DecodeRequest(cmd Command) (Request, error) {
	mk, ok := requests[cmd.Code]
	if !ok {
		return nil, &ProtocolError{Code: cmd.Code, Status: StatusUnsupported, Err: ErrUnsupported}
	}
	req := mk()
	if err := decodeInto(cmd.Payload, req); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Code, err)
	}
	return req, nil
}

// EncodeReply builds a successful response frame carrying r. A nil r
// produces an empty payload.
func EncodeReply(r Reply) Response {
	if r == nil {
		return Response{Status: StatusOK}
	}
	e := &encoder{}
	r.encode(e)
	return Response{Status: StatusOK, Payload: e.buf}
}

// Failure builds an error response frame with a human-readable message.
func Failure(status Status, msg string) Response {
	return Response{Status: status, Payload: []byte(msg)}
}

// DecodeReply parses a successful response payload into r.
func DecodeReply(payload []byte, r Reply) error {
	return decodeInto(payload, r)
}

func decodeInto(payload []byte, m interface{ decode(*decoder) }) error {
	d := &decoder{buf: payload}
	m.decode(d)
	return d.finish()
}

// DeviceInfoRequest asks for device identity. Reply: DeviceInfo.
type DeviceInfoRequest struct{}

func (*DeviceInfoRequest) Code() Code      { return CodeDeviceInfo }
func (*DeviceInfoRequest) encode(*encoder) {}
func (*DeviceInfoRequest) decode(*decoder) {}

// DeviceInfo payload: name, firmware, serial, region (strings).
type DeviceInfo struct {
	Name     string
	Firmware string
	Serial   string
	Region   string
}

func (r *DeviceInfo) encode(e *encoder) {
	e.str(r.Name)
	e.str(r.Firmware)
	e.str(r.Serial)
	e.str(r.Region)
}

func (r *DeviceInfo) decode(d *decoder) {
	r.Name = d.str()
	r.Firmware = d.str()
	r.Serial = d.str()
	r.Region = d.str()
}

// DriveInfoRequest lists storage drives. Reply: DriveList.
type DriveInfoRequest struct{}

func (*DriveInfoRequest) Code() Code      { return CodeDriveInfo }
func (*DriveInfoRequest) encode(*encoder) {}
func (*DriveInfoRequest) decode(*decoder) {}

// Drive describes one storage drive, e.g. ms0:/ (Memory Stick).
type Drive struct {
	Name  string
	Path  string
	Type  string
	Total uint64
	Free  uint64
}

// DriveList payload: count u16, then per drive name, path, type, total u64, free u64.
type DriveList struct {
	Drives []Drive
}

func (r *DriveList) encode(e *encoder) {
	e.u16(uint16(len(r.Drives))) //nolint:gosec // a handheld has a handful of drives
	for _, dr := range r.Drives {
		e.str(dr.Name)
		e.str(dr.Path)
		e.str(dr.Type)
		e.u64(dr.Total)
		e.u64(dr.Free)
	}
}

func (r *DriveList) decode(d *decoder) {
	n := int(d.u16())
	r.Drives = make([]Drive, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		r.Drives = append(r.Drives, Drive{
			Name:  d.str(),
			Path:  d.str(),
			Type:  d.str(),
			Total: d.u64(),
			Free:  d.u64(),
		})
	}
}

// ListDirRequest payload: path. Reply: DirList.
type ListDirRequest struct {
	Path string
}

func (*ListDirRequest) Code() Code          { return CodeListDirectory }
func (r *ListDirRequest) encode(e *encoder) { e.str(r.Path) }
func (r *ListDirRequest) decode(d *decoder) { r.Path = d.str() }

// DirEntry is one directory listing entry. ModTime is Unix seconds.
type DirEntry struct {
	Name    string
	IsDir   bool
	Size    uint64
	ModTime int64
}

// Time returns the modification time.
func (e DirEntry) Time() time.Time { return time.Unix(e.ModTime, 0) }

// DirList payload: count u32, then per entry name, isDir u8, size u64, mtime i64.
type DirList struct {
	Entries []DirEntry
}

func (r *DirList) encode(e *encoder) {
	e.u32(uint32(len(r.Entries))) //nolint:gosec // bounded by MaxPayload
	for _, ent := range r.Entries {
		e.str(ent.Name)
		e.bool(ent.IsDir)
		e.u64(ent.Size)
		e.i64(ent.ModTime)
	}
}

func (r *DirList) decode(d *decoder) {
	n := int(d.u32())
	// Each entry needs at least 19 bytes; cap the preallocation by what the
	// payload could hold.
	prealloc := min(n, (len(d.buf)-d.off)/19)
	r.Entries = make([]DirEntry, 0, prealloc)
	for i := 0; i < n && d.err == nil; i++ {
		r.Entries = append(r.Entries, DirEntry{
			Name:    d.str(),
			IsDir:   d.bool(),
			Size:    d.u64(),
			ModTime: d.i64(),
		})
	}
}

// ReadChunkRequest payload: path, offset u64, length u32. Reply: Chunk.
type ReadChunkRequest struct {
	Path   string
	Offset uint64
	Length uint32
}

func (*ReadChunkRequest) Code() Code { return CodeReadChunk }

func (r *ReadChunkRequest) encode(e *encoder) {
	e.str(r.Path)
	e.u64(r.Offset)
	e.u32(r.Length)
}

func (r *ReadChunkRequest) decode(d *decoder) {
	r.Path = d.str()
	r.Offset = d.u64()
	r.Length = d.u32()
}

// Chunk payload: raw file bytes. Fewer than requested means end of file.
type Chunk struct {
	Data []byte
}

func (r *Chunk) encode(e *encoder) { e.raw(r.Data) }
func (r *Chunk) decode(d *decoder) { r.Data = d.rest() }

// WriteFlagTruncate cuts the file to the request offset before writing.
// At offset 0 the file starts empty.
const WriteFlagTruncate uint8 = 1 << 0

// WriteChunkRequest payload: path, offset u64, flags u8, data. Reply: Written.
// The file is created if missing.
type WriteChunkRequest struct {
	Path     string
	Offset   uint64
	Truncate bool
	Data     []byte
}

func (*WriteChunkRequest) Code() Code { return CodeWriteChunk }

func (r *WriteChunkRequest) encode(e *encoder) {
	e.str(r.Path)
	e.u64(r.Offset)
	var flags uint8
	if r.Truncate {
		flags |= WriteFlagTruncate
	}
	e.u8(flags)
	e.raw(r.Data)
}

func (r *WriteChunkRequest) decode(d *decoder) {
	r.Path = d.str()
	r.Offset = d.u64()
	r.Truncate = d.u8()&WriteFlagTruncate != 0
	r.Data = d.rest()
}

// Written payload: bytes written u32.
type Written struct {
	N uint32
}

func (r *Written) encode(e *encoder) { e.u32(r.N) }
func (r *Written) decode(d *decoder) { r.N = d.u32() }

// DeleteRequest removes a file. Payload: path.
type DeleteRequest struct {
	Path string
}

func (*DeleteRequest) Code() Code          { return CodeDelete }
func (r *DeleteRequest) encode(e *encoder) { e.str(r.Path) }
func (r *DeleteRequest) decode(d *decoder) { r.Path = d.str() }

// MkdirRequest creates one directory. Payload: path.
type MkdirRequest struct {
	Path string
}

func (*MkdirRequest) Code() Code          { return CodeCreateDirectory }
func (r *MkdirRequest) encode(e *encoder) { e.str(r.Path) }
func (r *MkdirRequest) decode(d *decoder) { r.Path = d.str() }

// RmdirRequest removes a directory. Payload: path, recursive u8.
type RmdirRequest struct {
	Path      string
	Recursive bool
}

func (*RmdirRequest) Code() Code { return CodeDeleteDirectory }

func (r *RmdirRequest) encode(e *encoder) {
	e.str(r.Path)
	e.bool(r.Recursive)
}

func (r *RmdirRequest) decode(d *decoder) {
	r.Path = d.str()
	r.Recursive = d.bool()
}

// RenameRequest payload: old path, new path.
type RenameRequest struct {
	From string
	To   string
}

func (*RenameRequest) Code() Code { return CodeRename }

func (r *RenameRequest) encode(e *encoder) {
	e.str(r.From)
	e.str(r.To)
}

func (r *RenameRequest) decode(d *decoder) {
	r.From = d.str()
	r.To = d.str()
}

// FileInfoRequest payload: path. Reply: FileInfo.
type FileInfoRequest struct {
	Path string
}

func (*FileInfoRequest) Code() Code          { return CodeFileInfo }
func (r *FileInfoRequest) encode(e *encoder) { e.str(r.Path) }
func (r *FileInfoRequest) decode(d *decoder) { r.Path = d.str() }

// FileInfo payload: isDir u8, size u64, mtime i64 (Unix seconds).
type FileInfo struct {
	IsDir   bool
	Size    uint64
	ModTime int64
}

// Time returns the modification time.
func (r FileInfo) Time() time.Time { return time.Unix(r.ModTime, 0) }

func (r *FileInfo) encode(e *encoder) {
	e.bool(r.IsDir)
	e.u64(r.Size)
	e.i64(r.ModTime)
}

func (r *FileInfo) decode(d *decoder) {
	r.IsDir = d.bool()
	r.Size = d.u64()
	r.ModTime = d.i64()
}

// BatteryRequest queries the battery. Reply: BatteryInfo.
type BatteryRequest struct{}

func (*BatteryRequest) Code() Code      { return CodeBatteryStatus }
func (*BatteryRequest) encode(*encoder) {}
func (*BatteryRequest) decode(*decoder) {}

const (
	// BatteryLevelUnknown marks an unavailable charge level.
	BatteryLevelUnknown uint8 = 0xFF
	// BatteryMinutesUnknown marks an unavailable time estimate.
	BatteryMinutesUnknown uint16 = 0xFFFF
)

// BatteryInfo payload: level u8 (percent), charging u8, minutes remaining u16.
type BatteryInfo struct {
	Level    uint8
	Charging bool
	Minutes  uint16
}

func (r *BatteryInfo) encode(e *encoder) {
	e.u8(r.Level)
	e.bool(r.Charging)
	e.u16(r.Minutes)
}

func (r *BatteryInfo) decode(d *decoder) {
	r.Level = d.u8()
	r.Charging = d.bool()
	r.Minutes = d.u16()
}

// PingRequest payload: sequence u32, echoed back in a Pong.
type PingRequest struct {
	Seq uint32
}

func (*PingRequest) Code() Code          { return CodePing }
func (r *PingRequest) encode(e *encoder) { e.u32(r.Seq) }
func (r *PingRequest) decode(d *decoder) { r.Seq = d.u32() }

// Pong payload: sequence u32.
type Pong struct {
	Seq uint32
}

func (r *Pong) encode(e *encoder) { e.u32(r.Seq) }
func (r *Pong) decode(d *decoder) { r.Seq = d.u32() }

// EnterBulkModeRequest switches the console into USB bulk mode.
type EnterBulkModeRequest struct{}

func (*EnterBulkModeRequest) Code() Code      { return CodeEnterBulkMode }
func (*EnterBulkModeRequest) encode(*encoder) {}
func (*EnterBulkModeRequest) decode(*decoder) {}

// ExitBulkModeRequest leaves USB bulk mode.
type ExitBulkModeRequest struct{}

func (*ExitBulkModeRequest) Code() Code      { return CodeExitBulkMode }
func (*ExitBulkModeRequest) encode(*encoder) {}
func (*ExitBulkModeRequest) decode(*decoder) {}
