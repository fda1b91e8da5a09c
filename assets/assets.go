// Package assets implements the Asset Deduplicator (C2): user-supplied logo
// images keyed by content hash, so identical uploads reuse the same file.
package assets

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// LogoAsset mirrors §3's Logo Asset record.
type LogoAsset struct {
	ContentHash string    `json:"content_hash"`
	Path        string    `json:"path"`
	Ext         string    `json:"ext"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
}

// Store deduplicates logo uploads by SHA-256 content hash. lastUsed is
// tracked in an in-memory TTL cache (patrickmn/go-cache, also used elsewhere
// for request-scoped memoization) rather than a separate database table,
// since it only gates the cleanup sweep.
type Store struct {
	dir      string
	mu       sync.Mutex
	lastUsed *cache.Cache
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logo asset directory: %w", err)
	}
	return &Store{dir: dir, lastUsed: cache.New(cache.NoExpiration, time.Hour)}, nil
}

// SaveLogo implements save_logo(bytes, ext) -> (path, is_new) from §4.4.
func (s *Store) SaveLogo(content []byte, ext string) (*LogoAsset, bool, error) {
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	filename := fmt.Sprintf("custom_logo_%s%s", hash[:8], ext)
	path := filepath.Join(s.dir, filename)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.lastUsed.Set(hash[:8], now, cache.NoExpiration)

	if _, err := os.Stat(path); err == nil {
		return &LogoAsset{ContentHash: hash, Path: path, Ext: ext, LastUsedAt: now}, false, nil
	} else if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("stat-ing logo asset: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			// Lost a create race against a concurrent identical upload; the
			// winner's file is equally valid since the content is identical.
			return &LogoAsset{ContentHash: hash, Path: path, Ext: ext, LastUsedAt: now}, false, nil
		}
		return nil, false, fmt.Errorf("creating logo asset file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, bytes.NewReader(content)); err != nil {
		os.Remove(path)
		return nil, false, fmt.Errorf("writing logo asset: %w", err)
	}

	return &LogoAsset{ContentHash: hash, Path: path, Ext: ext, CreatedAt: now, LastUsedAt: now}, true, nil
}

// Cleanup deletes logo files not referenced within the given window (§4.4,
// §4.8b). A file's reference time is taken from lastUsed when present in
// the in-memory cache, otherwise from its on-disk modification time (e.g.
// after a process restart where the cache is empty).
func (s *Store) Cleanup(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	var deleted int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		last := info.ModTime()
		if hash, ok := hashFromFilename(e.Name()); ok {
			if v, found := s.lastUsed.Get(hash); found {
				last = v.(time.Time)
			}
		}
		if now.Sub(last) > olderThan {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err == nil {
				deleted++
			}
		}
	}
	return deleted, nil
}

func hashFromFilename(name string) (string, bool) {
	const prefix = "custom_logo_"
	if len(name) <= len(prefix)+8 || name[:len(prefix)] != prefix {
		return "", false
	}
	return name[len(prefix) : len(prefix)+8], true
}
