package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/psplink/internal/config"
	"github.com/bamsammich/psplink/internal/device"
	"github.com/bamsammich/psplink/internal/engine"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "psplink"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "psplink", "config.toml"), []byte(content), 0o644))
}

func TestPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, "/xdg/psplink/config.toml", config.Path())
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Device.VendorID)
	assert.Nil(t, cfg.Transfer.Verify)

	s, err := cfg.Resolve()
	require.NoError(t, err)
	assert.Equal(t, device.DefaultConfig().ISOPath, s.Device.ISOPath)
	assert.Equal(t, engine.DefaultChunkSize, s.Transfer.ChunkSize)
	assert.Equal(t, engine.DefaultCheckpointPath(), s.CheckpointPath)
}

func TestLoad_FullConfig(t *testing.T) {
	writeConfig(t, `
[device]
vendor_id = "0x054C"
product_id = "0x02D2"
timeout = "2s"
attempts = 5
retry_delay = "250ms"
iso_path = "ef0:/ISO"
auto_reconnect = true
control_admin = true

[transfer]
chunk_size = "256K"
retry_count = 4
retry_delay = "2s"
verify = true
checksum = "xxhash"
bwlimit = "1M"
cancel_policy = "remove"
checkpoint = "off"
`)

	cfg, err := config.Load()
	require.NoError(t, err)
	s, err := cfg.Resolve()
	require.NoError(t, err)

	assert.Equal(t, uint16(0x054C), s.Device.USB.VendorID)
	assert.Equal(t, uint16(0x02D2), s.Device.USB.ProductID)
	assert.Equal(t, 2*time.Second, s.Device.USB.Timeout)
	assert.Equal(t, 2*time.Second, s.Device.Proto.Timeout)
	assert.Equal(t, 5, s.Device.Proto.Attempts)
	assert.Equal(t, 250*time.Millisecond, s.Device.Proto.RetryDelay)
	assert.Equal(t, "ef0:/ISO", s.Device.ISOPath)
	assert.True(t, s.Device.AutoReconnect)
	assert.True(t, s.Device.Proto.ControlAdmin)

	assert.Equal(t, 256*1024, s.Transfer.ChunkSize)
	assert.Equal(t, 4, s.Transfer.RetryCount)
	assert.Equal(t, 2*time.Second, s.Transfer.RetryDelay)
	assert.True(t, s.Transfer.Verify)
	assert.Equal(t, engine.XXHash, s.Transfer.Checksum)
	assert.Equal(t, int64(1<<20), s.Transfer.BWLimit)
	assert.Equal(t, engine.RemovePartial, s.Transfer.CancelPolicy)
	assert.Empty(t, s.CheckpointPath)
}

func TestLoad_PartialConfig(t *testing.T) {
	writeConfig(t, "[transfer]\nverify = false\ncheckpoint = \"/tmp/cp.db\"\n")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Transfer.Verify)
	assert.Nil(t, cfg.Transfer.RetryCount)

	s, err := cfg.Resolve()
	require.NoError(t, err)
	assert.False(t, s.Transfer.Verify)
	assert.Equal(t, engine.DefaultRetryCount, s.Transfer.RetryCount)
	assert.Equal(t, "/tmp/cp.db", s.CheckpointPath)
}

func TestLoad_InvalidTOML(t *testing.T) {
	writeConfig(t, "[transfer\nverify = ")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_UnknownKey(t *testing.T) {
	writeConfig(t, "[transfer]\nworkers = 8\n")
	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
}

func TestResolve_Invalid(t *testing.T) {
	str := func(s string) *string { return &s }
	zero := 0

	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"vendor", config.Config{Device: config.DeviceConfig{VendorID: str("sony")}}},
		{"product too big", config.Config{Device: config.DeviceConfig{ProductID: str("0x10000")}}},
		{"timeout", config.Config{Device: config.DeviceConfig{Timeout: str("soon")}}},
		{"attempts", config.Config{Device: config.DeviceConfig{Attempts: &zero}}},
		{"chunk", config.Config{Transfer: config.TransferConfig{ChunkSize: str("0")}}},
		{"retries", config.Config{Transfer: config.TransferConfig{RetryCount: &zero}}},
		{"delay", config.Config{Transfer: config.TransferConfig{RetryDelay: str("-1s")}}},
		{"checksum", config.Config{Transfer: config.TransferConfig{Checksum: str("md5")}}},
		{"bwlimit", config.Config{Transfer: config.TransferConfig{BWLimit: str("fast")}}},
		{"policy", config.Config{Transfer: config.TransferConfig{CancelPolicy: str("shred")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Resolve()
			assert.Error(t, err)
		})
	}
}

func TestParseID(t *testing.T) {
	id, err := config.ParseID("0x01c9")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x01C9), id)

	id, err = config.ParseID("1356")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x054C), id)
}
