package engine

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"
)

// CheckpointDB provides SQLite-backed resume offsets for interrupted
// transfers, so a restarted process can continue where the last one stopped.
type CheckpointDB struct {
	db   *sql.DB
	path string

	// Pending offsets keyed by job id, written by flushLoop.
	mu      sync.Mutex
	batch   map[string]Checkpoint
	done    chan struct{}
	stopped bool
}

// Checkpoint is the recorded progress of one src/dst pair.
type Checkpoint struct {
	Updated time.Time
	JobID   string
	Src     string
	Dst     string
	Offset  int64
	Size    int64
}

// OpenCheckpoint opens (or creates) the checkpoint database at path. An
// empty path selects DefaultCheckpointPath.
func OpenCheckpoint(path string) (*CheckpointDB, error) {
	if path == "" {
		path = DefaultCheckpointPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}

	c := &CheckpointDB{
		db:    db,
		path:  path,
		batch: make(map[string]Checkpoint),
		done:  make(chan struct{}),
	}

	if err := c.init(); err != nil {
		db.Close()
		return nil, err
	}

	go c.flushLoop()

	return c, nil
}

func (c *CheckpointDB) init() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS transfers (
			job     TEXT PRIMARY KEY,
			src     TEXT NOT NULL,
			dst     TEXT NOT NULL,
			written INTEGER NOT NULL,
			size    INTEGER NOT NULL,
			updated INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Save records that src has been copied to dst up to offset. Writes are
// batched and flushed periodically.
func (c *CheckpointDB) Save(src, dst string, offset, size int64) {
	id := checkpointJobID(src, dst)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.batch[id] = Checkpoint{
		JobID:   id,
		Src:     src,
		Dst:     dst,
		Offset:  offset,
		Size:    size,
		Updated: time.Now(),
	}
}

// Lookup returns the recorded progress for src/dst, if any.
func (c *CheckpointDB) Lookup(src, dst string) (Checkpoint, bool, error) {
	id := checkpointJobID(src, dst)

	c.mu.Lock()
	if cp, ok := c.batch[id]; ok {
		c.mu.Unlock()
		return cp, true, nil
	}
	c.mu.Unlock()

	var (
		cp      = Checkpoint{JobID: id}
		updated int64
	)
	err := c.db.QueryRow(
		"SELECT src, dst, written, size, updated FROM transfers WHERE job = ?", id,
	).Scan(&cp.Src, &cp.Dst, &cp.Offset, &cp.Size, &updated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Checkpoint{}, false, nil
	case err != nil:
		return Checkpoint{}, false, fmt.Errorf("lookup checkpoint: %w", err)
	}
	cp.Updated = time.Unix(0, updated)
	return cp, true, nil
}

// Clear forgets src/dst, typically after the transfer completed.
func (c *CheckpointDB) Clear(src, dst string) error {
	id := checkpointJobID(src, dst)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.batch, id)
	if _, err := c.db.Exec("DELETE FROM transfers WHERE job = ?", id); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// List returns every recorded transfer, most recently updated first.
func (c *CheckpointDB) List() ([]Checkpoint, error) {
	if err := c.Flush(); err != nil {
		return nil, err
	}

	rows, err := c.db.Query("SELECT job, src, dst, written, size, updated FROM transfers ORDER BY updated DESC")
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var (
			cp      Checkpoint
			updated int64
		)
		if err := rows.Scan(&cp.JobID, &cp.Src, &cp.Dst, &cp.Offset, &cp.Size, &updated); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp.Updated = time.Unix(0, updated)
		out = append(out, cp)
	}
	return out, rows.Err()
}

// Flush writes any pending batch entries to the database.
func (c *CheckpointDB) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *CheckpointDB) flushLocked() error {
	if len(c.batch) == 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO transfers (job, src, dst, written, size, updated)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, cp := range c.batch {
		if _, err := stmt.Exec(cp.JobID, cp.Src, cp.Dst, cp.Offset, cp.Size, cp.Updated.UnixNano()); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s: %w", cp.Src, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	clear(c.batch)
	return nil
}

func (c *CheckpointDB) flushLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			_ = c.flushLocked()
			c.mu.Unlock()
		}
	}
}

// Close flushes any pending writes and closes the database.
func (c *CheckpointDB) Close() error {
	c.mu.Lock()
	if !c.stopped {
		c.stopped = true
		close(c.done)
	}
	_ = c.flushLocked()
	c.mu.Unlock()
	return c.db.Close()
}

// Path returns the path to the checkpoint database file.
func (c *CheckpointDB) Path() string {
	return c.path
}

// checkpointJobID computes a deterministic job ID from source and destination paths.
func checkpointJobID(src, dst string) string {
	h := blake3.New()
	h.Write([]byte(src))
	h.Write([]byte{0})
	h.Write([]byte(dst))
	digest := h.Sum(nil)
	return hex.EncodeToString(digest[:8])
}

// DefaultCheckpointPath returns $XDG_STATE_HOME/psplink/checkpoints.db,
// falling back to ~/.local/state and then the temp dir.
func DefaultCheckpointPath() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "psplink", "checkpoints.db")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "psplink", "checkpoints.db")
	}
	return filepath.Join(os.TempDir(), "psplink-checkpoints.db")
}
