package artcache

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/pebble"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "art")
	s, err := Open(path, 8, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	img := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	s.Store(42, img)
	dst := make([]byte, 8)
	if !s.Load(42, dst) {
		t.Fatalf("expected cache hit")
	}
	if !bytes.Equal(dst, img) {
		t.Fatalf("unexpected pixels %v", dst)
	}
	if s.Load(43, dst) {
		t.Fatalf("expected miss for unknown hash")
	}
	if s.Load(42, make([]byte, 4)) {
		t.Fatalf("expected miss for wrong destination size")
	}
	hits, misses, writes, _ := s.Stats()
	if hits != 1 || misses != 1 || writes != 1 {
		t.Fatalf("unexpected stats hits=%d misses=%d writes=%d", hits, misses, writes)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "art")
	s, err := Open(path, 4, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Store(7, []byte{9, 9, 9, 9})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(path, 4, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	dst := make([]byte, 4)
	if !s.Load(7, dst) {
		t.Fatalf("expected entry to survive reopen")
	}
}

func TestStoreClearsOnSizeChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "art")
	s, err := Open(path, 4, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Store(7, []byte{1, 1, 1, 1})
	s.Close()

	s, err = Open(path, 8, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	s.size = 4
	if s.Load(7, make([]byte, 4)) {
		t.Fatalf("expected entries from the old format to be cleared")
	}
}

func TestStoreClearsEntriesFromOlderKeyScheme(t *testing.T) {
	path := filepath.Join(t.TempDir(), "art")
	s, err := Open(path, 4, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Store(7, []byte{1, 1, 1, 1})
	old := make([]byte, 8)
	binary.BigEndian.PutUint64(old, 4)
	if err := s.db.Set([]byte(metaFormatKey), old, pebble.Sync); err != nil {
		t.Fatalf("rewrite meta: %v", err)
	}
	s.Close()

	s, err = Open(path, 4, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if s.Load(7, make([]byte, 4)) {
		t.Fatalf("expected entries keyed by the old scheme to be cleared")
	}
	s.Store(8, []byte{2, 2, 2, 2})
	if !s.Load(8, make([]byte, 4)) {
		t.Fatalf("expected new entries to load")
	}
}
