// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetchcache provides the disk-backed HTTP fetch layer shared by the
// listing feeds. Responses are cached under stable per-request keys so a
// re-run within the TTL replays from disk instead of hitting the APIs.
package fetchcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Cache is a disk-backed byte store keyed by logical request identifiers.
// A zero or negative TTL means entries never expire.
type Cache struct {
	Dir string
	TTL time.Duration
}

// Get returns the cached bytes for key. The second return is false when the
// entry is absent, older than the TTL, or unreadable.
func (c *Cache) Get(key string) ([]byte, bool) {
	path := filepath.Join(c.Dir, fileName(key))
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if c.TTL > 0 && time.Since(info.ModTime()) > c.TTL {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores data under key, creating the cache directory on first use. The
// write goes to a temp file first and is renamed into place so readers never
// observe a partial entry.
func (c *Cache) Put(key string, data []byte) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory %s: %w", c.Dir, err)
	}

	tmpFile, err := os.CreateTemp(c.Dir, ".cache-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing cache entry: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, filepath.Join(c.Dir, fileName(key))); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// fileName maps a logical key to a filesystem-safe name. Unsafe runes become
// underscores and a short content hash of the original key is appended, so
// keys that sanitize identically still get distinct files.
func fileName(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, key)
	if len(safe) > 80 {
		safe = safe[:80]
	}

	sum := sha256.Sum256([]byte(key))
	return safe + "-" + hex.EncodeToString(sum[:6])
}
