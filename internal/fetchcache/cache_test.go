// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetchcache

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCachePutGet(t *testing.T) {
	c := &Cache{Dir: t.TempDir()}

	if err := c.Put("licitaciones:activas", []byte(`{"Listado":[]}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, ok := c.Get("licitaciones:activas")
	if !ok {
		t.Fatal("Get returned miss for stored key")
	}
	if !bytes.Equal(data, []byte(`{"Listado":[]}`)) {
		t.Errorf("Get = %q", data)
	}
}

func TestCacheGetMissing(t *testing.T) {
	c := &Cache{Dir: t.TempDir()}

	if _, ok := c.Get("never-stored"); ok {
		t.Error("Get should miss for an absent key")
	}
}

func TestCachePutOverwrites(t *testing.T) {
	c := &Cache{Dir: t.TempDir()}

	if err := c.Put("k", []byte("old")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Put("k", []byte("new")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, ok := c.Get("k")
	if !ok || string(data) != "new" {
		t.Errorf("Get = %q, %v; want \"new\", true", data, ok)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	dir := t.TempDir()
	c := &Cache{Dir: dir, TTL: time.Minute}

	if err := c.Put("stale", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Age the entry past the TTL.
	old := time.Now().Add(-time.Hour)
	path := filepath.Join(dir, fileName("stale"))
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if _, ok := c.Get("stale"); ok {
		t.Error("Get should miss for an expired entry")
	}
}

func TestCacheZeroTTLNeverExpires(t *testing.T) {
	dir := t.TempDir()
	c := &Cache{Dir: dir}

	if err := c.Put("eternal", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	old := time.Now().Add(-24 * 365 * time.Hour)
	path := filepath.Join(dir, fileName("eternal"))
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if _, ok := c.Get("eternal"); !ok {
		t.Error("zero-TTL cache should never expire entries")
	}
}

func TestCacheKeysAreFilesystemSafe(t *testing.T) {
	c := &Cache{Dir: t.TempDir()}

	// Keys with path separators and URL punctuation must not escape the
	// cache directory or collide after sanitization.
	keyA := "detail/1234-56-LE26?qs=abc"
	keyB := "detail:1234-56-LE26/qs=abc"
	if err := c.Put(keyA, []byte("a")); err != nil {
		t.Fatalf("Put(%q): %v", keyA, err)
	}
	if err := c.Put(keyB, []byte("b")); err != nil {
		t.Fatalf("Put(%q): %v", keyB, err)
	}

	if data, ok := c.Get(keyA); !ok || string(data) != "a" {
		t.Errorf("Get(%q) = %q, %v", keyA, data, ok)
	}
	if data, ok := c.Get(keyB); !ok || string(data) != "b" {
		t.Errorf("Get(%q) = %q, %v", keyB, data, ok)
	}

	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 cache files, found %d", len(entries))
	}
	for _, e := range entries {
		if strings.ContainsAny(e.Name(), "/?:") {
			t.Errorf("unsafe cache filename %q", e.Name())
		}
	}
}

func TestFileNameCapsLength(t *testing.T) {
	name := fileName(strings.Repeat("x", 500))
	if len(name) > 100 {
		t.Errorf("len(fileName) = %d, want <= 100", len(name))
	}
}
