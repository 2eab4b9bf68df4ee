package imagecache

import (
	"testing"
	"time"

	"github.com/mangatl/mangatl/internal/cachekey"
)

func sampleKey() cachekey.Translation {
	return cachekey.Translation{MangaRef: "/m/one.zip", PageIndex: 3, Language: "zh", EngineID: "google"}
}

func TestPutGetHas(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	key := sampleKey()

	if c.Has(key) {
		t.Fatal("expected miss before Put")
	}
	if err := c.Put(key, []byte("fake-webp-bytes"), "fp1"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !c.Has(key) {
		t.Fatal("expected hit after Put")
	}
	data, ok := c.Get(key)
	if !ok {
		t.Fatal("expected Get to succeed")
	}
	if string(data) != "fake-webp-bytes" {
		t.Errorf("Get: got %q", data)
	}
}

func TestFingerprintAndDelete(t *testing.T) {
	c, _ := Open(t.TempDir())
	key := sampleKey()

	if _, ok := c.Fingerprint(key); ok {
		t.Fatal("expected no fingerprint before Put")
	}

	if err := c.Put(key, []byte("fake-webp-bytes"), "fp1"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	fp, ok := c.Fingerprint(key)
	if !ok || fp != "fp1" {
		t.Fatalf("Fingerprint: got (%q, %v), want (fp1, true)", fp, ok)
	}

	c.Delete(key)
	if c.Has(key) {
		t.Fatal("expected entry to be gone after Delete")
	}
	if _, ok := c.Fingerprint(key); ok {
		t.Fatal("expected no fingerprint after Delete")
	}
}

func TestClearWork(t *testing.T) {
	c, _ := Open(t.TempDir())
	a := cachekey.Translation{MangaRef: "/m/one.zip", PageIndex: 1, Language: "zh", EngineID: "google"}
	b := cachekey.Translation{MangaRef: "/m/two.zip", PageIndex: 1, Language: "zh", EngineID: "google"}
	c.Put(a, []byte("x"), "fp")
	c.Put(b, []byte("y"), "fp")

	n := c.ClearWork("/m/one.zip", "google")
	if n != 1 {
		t.Fatalf("expected 1 removed, got %d", n)
	}
	if c.Has(a) {
		t.Fatal("expected a to be removed")
	}
	if !c.Has(b) {
		t.Fatal("expected b to remain")
	}
}

func TestCleanupOld(t *testing.T) {
	c, _ := Open(t.TempDir())
	key := sampleKey()
	c.Put(key, []byte("x"), "fp")

	c.mu.Lock()
	c.sidecar[key.String()].LastAccessed = time.Now().UTC().Add(-48 * time.Hour)
	c.mu.Unlock()

	n := c.CleanupOld(24 * time.Hour)
	if n != 1 {
		t.Fatalf("expected 1 cleaned up, got %d", n)
	}
	if c.Has(key) {
		t.Fatal("expected entry to be gone")
	}
}

func TestEvictLRUUntil(t *testing.T) {
	c, _ := Open(t.TempDir())
	a := cachekey.Translation{MangaRef: "/m/one.zip", PageIndex: 1, Language: "zh", EngineID: "google"}
	b := cachekey.Translation{MangaRef: "/m/one.zip", PageIndex: 2, Language: "zh", EngineID: "google"}
	c.Put(a, make([]byte, 100), "fp")
	time.Sleep(2 * time.Millisecond)
	c.Put(b, make([]byte, 100), "fp")

	n := c.EvictLRUUntil(150)
	if n != 1 {
		t.Fatalf("expected 1 evicted, got %d", n)
	}
	if c.Has(a) {
		t.Fatal("expected older entry a to be evicted first")
	}
	if !c.Has(b) {
		t.Fatal("expected newer entry b to remain")
	}
}
