package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_LooseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.png")
	if err := os.WriteFile(path, []byte("fake-png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewFileLoader()
	data, err := l.Load(path, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(data) != "fake-png-bytes" {
		t.Errorf("unexpected bytes: %q", data)
	}
}

func TestLoad_LooseFile_OutOfRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.png")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewFileLoader()
	if _, err := l.Load(path, 1); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002.jpg", "001.jpg", "003.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	l := NewFileLoader()
	data, err := l.Load(dir, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(data) != "001.jpg" {
		t.Errorf("expected first page to be 001.jpg in sorted order, got %q", data)
	}
}

func TestLoad_Directory_IgnoresNonImages(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("notes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "001.jpg"), []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewFileLoader()
	if _, err := l.Load(dir, 0); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := l.Load(dir, 1); err == nil {
		t.Fatal("expected out-of-range since only one image file is present")
	}
}
