package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreallocateKeepsSize(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.bin"))
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("abc"))
	require.NoError(t, err)

	Preallocate(f, 1<<20)
	Preallocate(f, 0)
	require.NoError(t, Datasync(f))

	fi, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(3), fi.Size())
}
