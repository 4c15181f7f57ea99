// Package artcache keeps decoded artwork on disk, keyed by payload digest, so a
// restarted client (or a host flipping between two tracks) can show an image
// without decoding it again.
package artcache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
)

const (
	keyPrefix = byte('a')

	metaFormatKey = "meta|format"

	// keyScheme is bumped whenever the meaning of entry keys changes.
	// 2: xxh3 over the whole encoded payload.
	keyScheme = 2
)

// Store is a Pebble-backed artwork cache. Load and Store are called from the
// ingestion goroutine; Pebble itself is safe for concurrent use.
type Store struct {
	db      *pebble.DB
	cache   *pebble.Cache
	path    string
	size    int
	hits    atomic.Uint64
	misses  atomic.Uint64
	writes  atomic.Uint64
	errored atomic.Uint64
}

// Open opens (or creates) the cache at path for images of exactly size bytes.
// A cache built for a different image size or key scheme is wiped so stale
// entries never match.
func Open(path string, size int, cacheBytes int64) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("artcache: path is empty")
	}
	if size <= 0 {
		return nil, fmt.Errorf("artcache: invalid image size %d", size)
	}
	opts := &pebble.Options{}
	if cacheBytes > 0 {
		opts.Cache = pebble.NewCache(cacheBytes)
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		if opts.Cache != nil {
			opts.Cache.Unref()
		}
		return nil, fmt.Errorf("artcache: open %s: %w", path, err)
	}
	s := &Store{db: db, cache: opts.Cache, path: path, size: size}
	if err := s.checkFormat(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases Pebble resources.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var err error
	if s.db != nil {
		err = s.db.Close()
		s.db = nil
	}
	if s.cache != nil {
		s.cache.Unref()
		s.cache = nil
	}
	return err
}

// Load copies the cached image for key into dst.
func (s *Store) Load(key uint64, dst []byte) bool {
	if s == nil || s.db == nil || len(dst) != s.size {
		return false
	}
	value, closer, err := s.db.Get(makeKey(key))
	if err != nil {
		if !errors.Is(err, pebble.ErrNotFound) {
			s.errored.Add(1)
		}
		s.misses.Add(1)
		return false
	}
	defer closer.Close()
	if len(value) != s.size {
		s.misses.Add(1)
		return false
	}
	copy(dst, value)
	s.hits.Add(1)
	return true
}

// Store writes the image for key. Writes skip the WAL fsync: losing the
// newest entry on power loss only costs one decode.
func (s *Store) Store(key uint64, pixels []byte) {
	if s == nil || s.db == nil || len(pixels) != s.size {
		return
	}
	if err := s.db.Set(makeKey(key), pixels, pebble.NoSync); err != nil {
		if n := s.errored.Add(1); n == 1 {
			log.Printf("Artwork cache: write failed for %s: %v", s.path, err)
		}
		return
	}
	s.writes.Add(1)
}

// Stats reports hit/miss/write/error counts.
func (s *Store) Stats() (hits, misses, writes, errored uint64) {
	if s == nil {
		return 0, 0, 0, 0
	}
	return s.hits.Load(), s.misses.Load(), s.writes.Load(), s.errored.Load()
}

func (s *Store) checkFormat() error {
	want := make([]byte, 9)
	binary.BigEndian.PutUint64(want, uint64(s.size))
	want[8] = keyScheme
	value, closer, err := s.db.Get([]byte(metaFormatKey))
	switch {
	case err == nil:
		match := string(value) == string(want)
		closer.Close()
		if match {
			return nil
		}
		log.Printf("Artwork cache: format changed, clearing %s", s.path)
		lower := []byte{keyPrefix}
		upper := []byte{keyPrefix + 1}
		if err := s.db.DeleteRange(lower, upper, pebble.Sync); err != nil {
			return fmt.Errorf("artcache: clear: %w", err)
		}
	case errors.Is(err, pebble.ErrNotFound):
	default:
		return fmt.Errorf("artcache: read format: %w", err)
	}
	if err := s.db.Set([]byte(metaFormatKey), want, pebble.Sync); err != nil {
		return fmt.Errorf("artcache: write format: %w", err)
	}
	return nil
}

func makeKey(hash uint64) []byte {
	key := make([]byte, 9)
	key[0] = keyPrefix
	binary.BigEndian.PutUint64(key[1:], hash)
	return key
}
