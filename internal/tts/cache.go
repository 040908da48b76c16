package tts

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ClipCache is a SQLite-backed store of rendered audio keyed by backend
// and text digest. Rendering is the slow half of a chain step, and the
// same message often recurs across runs, so backends can be wrapped to
// reuse clips process-wide. The orchestrator never sees the cache.
type ClipCache struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenClipCache initializes the cache database, creating the schema and
// parent directory as needed.
func OpenClipCache(ctx context.Context, path string, log *slog.Logger) (*ClipCache, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS clips (
    backend TEXT NOT NULL,
    digest TEXT NOT NULL,
    media_type TEXT NOT NULL,
    audio BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY(backend, digest)
);
`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("init clip cache schema: %w", err)
	}

	return &ClipCache{db: db, log: log.With(slog.String("component", "clip-cache"))}, nil
}

// Close releases the underlying database.
func (c *ClipCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *ClipCache) lookup(ctx context.Context, backend, digest string) (Clip, bool) {
	row := c.db.QueryRowContext(ctx,
		`SELECT media_type, audio FROM clips WHERE backend = ? AND digest = ?`, backend, digest)
	var clip Clip
	if err := row.Scan(&clip.MediaType, &clip.Audio); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Warn("clip lookup failed", slog.String("error", err.Error()))
		}
		return Clip{}, false
	}
	return clip, true
}

func (c *ClipCache) store(ctx context.Context, backend, digest string, clip Clip) {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO clips(backend, digest, media_type, audio) VALUES (?, ?, ?, ?)`,
		backend, digest, clip.MediaType, clip.Audio)
	if err != nil {
		c.log.Warn("clip store failed", slog.String("error", err.Error()))
	}
}

// Wrap returns a synthesizer that consults the cache before delegating
// to inner. Cache faults never fail a synthesis; they only cost the
// render time.
func (c *ClipCache) Wrap(backendKey string, inner Synthesizer) Synthesizer {
	if c == nil {
		return inner
	}
	return &cachingSynth{cache: c, backend: backendKey, inner: inner}
}

type cachingSynth struct {
	cache   *ClipCache
	backend string
	inner   Synthesizer
}

func (s *cachingSynth) Synthesize(ctx context.Context, text string) (Clip, error) {
	sum := sha256.Sum256([]byte(text))
	digest := hex.EncodeToString(sum[:])

	if clip, ok := s.cache.lookup(ctx, s.backend, digest); ok {
		return clip, nil
	}
	clip, err := s.inner.Synthesize(ctx, text)
	if err != nil {
		return Clip{}, err
	}
	s.cache.store(ctx, s.backend, digest, clip)
	return clip, nil
}
