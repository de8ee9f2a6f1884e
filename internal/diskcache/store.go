// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package diskcache is the persistent artifact tier: compressed blobs on
// disk, a SQLite index of sizes and access times, and a sweeper that keeps
// the total size at or below a byte cap.
//
// Blobs are written to a staging file in the destination directory and
// renamed into place, so a reader never observes a partial blob. The
// sweeper evicts by ascending last-access time and skips entries that a
// concurrent Get is reading.
package diskcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/markxiv/pkg/types"
)

const (
	dbFile        = "index.db"
	stagingPrefix = ".stage-"

	// DefaultSweepInterval is used when no interval is configured.
	DefaultSweepInterval = 10 * time.Minute

	// DefaultStageGrace is how old a staging file must be before Open
	// treats it as the leftover of an interrupted write.
	DefaultStageGrace = time.Hour
)

// ErrDisabled is returned by Open when the byte cap is zero.
var ErrDisabled = errors.New("disk cache disabled")

// Options configures a Store.
type Options struct {
	Root          string
	CapBytes      int64
	SweepInterval time.Duration
	Compression   types.Compression
	Logger        *slog.Logger
	// StageGrace protects staging files younger than this from removal on
	// Open; another process sharing Root may still be writing them.
	StageGrace time.Duration
	// Now overrides the clock used for access times.
	Now func() time.Time
}

// Store is a size-bounded on-disk artifact cache. It is safe for
// concurrent use.
type Store struct {
	root     string
	capBytes int64
	interval time.Duration
	grace    time.Duration
	codec    codec
	logger   *slog.Logger
	now      func() time.Time
	db       *sql.DB

	// mu serializes index mutations that must agree with the files on
	// disk (publish, evict, remove) and guards readers.
	mu      sync.Mutex
	readers map[string]int
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries  int   `json:"entries" yaml:"entries"`
	Bytes    int64 `json:"bytes" yaml:"bytes"`
	CapBytes int64 `json:"cap_bytes" yaml:"cap_bytes"`
}

// SweepResult reports what one sweep removed.
type SweepResult struct {
	Removed int
	Freed   int64
	Skipped int
	Total   int64
}

// Open opens or creates the cache under opts.Root and reconciles the index
// with the blobs found on disk. It returns ErrDisabled when CapBytes is
// zero.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.CapBytes <= 0 {
		return nil, ErrDisabled
	}
	if opts.Root == "" {
		return nil, fmt.Errorf("disk cache root not set")
	}
	c, err := codecFor(opts.Compression)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache root: %w", err)
	}

	dbPath := filepath.Join(opts.Root, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	// One connection: index statements are short and serializing them
	// avoids SQLITE_BUSY between the sweeper and request goroutines.
	db.SetMaxOpenConns(1)

	s := &Store{
		root:     opts.Root,
		capBytes: opts.CapBytes,
		interval: opts.SweepInterval,
		grace:    opts.StageGrace,
		codec:    c,
		logger:   opts.Logger,
		now:      opts.Now,
		db:       db,
		readers:  make(map[string]int),
	}
	if s.interval <= 0 {
		s.interval = DefaultSweepInterval
	}
	if s.grace <= 0 {
		s.grace = DefaultStageGrace
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if err := s.reconcile(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("reconciling index: %w", err)
	}
	return s, nil
}

// Close releases the index database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CapBytes returns the configured byte cap.
func (s *Store) CapBytes() int64 { return s.capBytes }

func (s *Store) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			key TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			size INTEGER NOT NULL,
			last_access INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_last_access ON entries(last_access)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// Put compresses a and publishes it under its key, replacing any previous
// entry. The blob becomes visible only once fully written.
func (s *Store) Put(ctx context.Context, a *types.Artifact) error {
	key := a.Key.String()
	payload, err := marshalPayload(a)
	if err != nil {
		return err
	}
	data, err := s.codec.encode(payload)
	if err != nil {
		return err
	}

	rel := relPath(key, s.codec.ext())
	dest := s.abs(rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating shard directory: %w", err)
	}
	staged, err := stage(filepath.Dir(dest), data)
	if err != nil {
		return fmt.Errorf("staging %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var oldRel string
	err = s.db.QueryRowContext(ctx, `SELECT path FROM entries WHERE key = ?`, key).Scan(&oldRel)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		os.Remove(staged)
		return fmt.Errorf("looking up %s: %w", key, err)
	}
	if err := os.Rename(staged, dest); err != nil {
		os.Remove(staged)
		return fmt.Errorf("publishing %s: %w", key, err)
	}
	now := s.now().UnixNano()
	_, err = s.db.ExecContext(ctx, `INSERT INTO entries (key, path, size, last_access, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET path = excluded.path, size = excluded.size,
			last_access = excluded.last_access, created_at = excluded.created_at`,
		key, rel, len(data), now, a.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("indexing %s: %w", key, err)
	}
	// A compression change leaves the previous blob under another name.
	if oldRel != "" && oldRel != rel {
		removeFile(s.abs(oldRel))
	}
	return nil
}

// stage writes data to a new staging file in dir and syncs it.
func stage(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, stagingPrefix+"*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	_, werr := f.Write(data)
	if werr == nil {
		werr = f.Sync()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(name)
		return "", werr
	}
	return name, nil
}

// Get returns the artifact stored under key and refreshes its access time.
// A missing entry reports ok == false with a nil error. A blob that cannot
// be decoded is dropped and reported as an error.
func (s *Store) Get(ctx context.Context, key types.DocumentKey) (*types.Artifact, bool, error) {
	k := key.String()

	s.mu.Lock()
	var rel string
	err := s.db.QueryRowContext(ctx, `SELECT path FROM entries WHERE key = ?`, k).Scan(&rel)
	if errors.Is(err, sql.ErrNoRows) {
		s.mu.Unlock()
		return nil, false, nil
	}
	if err != nil {
		s.mu.Unlock()
		return nil, false, fmt.Errorf("looking up %s: %w", k, err)
	}
	s.readers[k]++
	s.mu.Unlock()
	defer s.release(k)

	data, err := os.ReadFile(s.abs(rel))
	if errors.Is(err, fs.ErrNotExist) {
		s.dropRow(ctx, k, rel)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", k, err)
	}

	a, err := s.decode(rel, data)
	if err != nil {
		s.logger.WarnContext(ctx, "dropping unreadable cache blob", "key", k, "error", err)
		if rerr := s.Remove(ctx, key); rerr != nil {
			s.logger.WarnContext(ctx, "removing unreadable cache blob", "key", k, "error", rerr)
		}
		return nil, false, fmt.Errorf("decoding %s: %w", k, err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE entries SET last_access = ? WHERE key = ?`,
		s.now().UnixNano(), k); err != nil {
		s.logger.WarnContext(ctx, "touching cache entry", "key", k, "error", err)
	}
	return a, true, nil
}

func (s *Store) decode(rel string, data []byte) (*types.Artifact, error) {
	c, ok := codecForPath(rel)
	if !ok {
		return nil, fmt.Errorf("%w: unknown blob extension", errCorrupt)
	}
	payload, err := c.decode(data)
	if err != nil {
		return nil, err
	}
	return unmarshalPayload(payload)
}

func (s *Store) release(key string) {
	s.mu.Lock()
	if s.readers[key]--; s.readers[key] <= 0 {
		delete(s.readers, key)
	}
	s.mu.Unlock()
}

// dropRow deletes the index row for key if it still points at rel.
func (s *Store) dropRow(ctx context.Context, key, rel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ? AND path = ?`, key, rel); err != nil {
		s.logger.WarnContext(ctx, "dropping dangling cache row", "key", key, "error", err)
	}
}

// Remove deletes the entry for key, if any.
func (s *Store) Remove(ctx context.Context, key types.DocumentKey) error {
	k := key.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	var rel string
	err := s.db.QueryRowContext(ctx, `SELECT path FROM entries WHERE key = ?`, k).Scan(&rel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up %s: %w", k, err)
	}
	removeFile(s.abs(rel))
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, k); err != nil {
		return fmt.Errorf("removing %s: %w", k, err)
	}
	return nil
}

// Stats reports the number of entries and their total on-disk size.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{CapBytes: s.capBytes}
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM entries`).
		Scan(&st.Entries, &st.Bytes)
	if err != nil {
		return Stats{}, fmt.Errorf("reading cache stats: %w", err)
	}
	return st, nil
}

func removeFile(p string) {
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("removing cache blob", "path", p, "error", err)
	}
}

// reconcile brings the index in line with the files under root: staging
// files older than the grace period are deleted, rows without a blob are dropped, and blobs
// without a row are adopted with their modification time as last access.
func (s *Store) reconcile(ctx context.Context) error {
	type blob struct {
		size  int64
		mtime time.Time
	}
	onDisk := make(map[string]blob)
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, stagingPrefix) {
			info, err := d.Info()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if s.now().Sub(info.ModTime()) >= s.grace {
				removeFile(p)
			}
			return nil
		}
		if !strings.Contains(name, blobSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		onDisk[filepath.ToSlash(rel)] = blob{size: info.Size(), mtime: info.ModTime()}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning cache root: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, path, size FROM entries`)
	if err != nil {
		return fmt.Errorf("listing entries: %w", err)
	}
	type row struct {
		key, path string
		size      int64
	}
	var indexed []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.key, &r.path, &r.size); err != nil {
			rows.Close()
			return fmt.Errorf("scanning entry: %w", err)
		}
		indexed = append(indexed, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("listing entries: %w", err)
	}

	var dropped, adopted int
	for _, r := range indexed {
		b, ok := onDisk[r.path]
		if !ok {
			if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, r.key); err != nil {
				return fmt.Errorf("dropping %s: %w", r.key, err)
			}
			dropped++
			continue
		}
		delete(onDisk, r.path)
		if b.size != r.size {
			if _, err := s.db.ExecContext(ctx, `UPDATE entries SET size = ? WHERE key = ?`, b.size, r.key); err != nil {
				return fmt.Errorf("resizing %s: %w", r.key, err)
			}
		}
	}
	for rel, b := range onDisk {
		key, ok := keyFromRelPath(rel)
		if !ok {
			continue
		}
		_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO entries (key, path, size, last_access, created_at)
			VALUES (?, ?, ?, ?, ?)`, key, rel, b.size, b.mtime.UnixNano(), b.mtime.UnixNano())
		if err != nil {
			return fmt.Errorf("adopting %s: %w", rel, err)
		}
		adopted++
	}
	if dropped > 0 || adopted > 0 {
		s.logger.InfoContext(ctx, "disk cache reconciled", "dropped", dropped, "adopted", adopted)
	}
	return nil
}
