package spool

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestBuffer_InMemory(t *testing.T) {
	b := New(Options{Threshold: 16, Dir: t.TempDir()})
	if _, err := b.Write([]byte("hello")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if b.Spilled() {
		t.Error("Spilled() = true, want false")
	}
	r, err := b.Reader()
	if err != nil {
		t.Fatalf("Reader() error = %v", err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if string(got) != "hello" {
		t.Errorf("content = %q, want hello", got)
	}
}

func TestBuffer_Spill(t *testing.T) {
	dir := t.TempDir()
	b := New(Options{Threshold: 4, Dir: dir})
	for _, s := range []string{"abc", "def", "ghi"} {
		if _, err := b.Write([]byte(s)); err != nil {
			t.Fatalf("Write(%q) error = %v", s, err)
		}
	}
	if !b.Spilled() {
		t.Fatal("Spilled() = false after crossing threshold")
	}
	if b.Len() != 9 {
		t.Errorf("Len() = %d, want 9", b.Len())
	}
	r, err := b.Reader()
	if err != nil {
		t.Fatalf("Reader() error = %v", err)
	}
	got, _ := io.ReadAll(r)
	if string(got) != "abcdefghi" {
		t.Errorf("content = %q, want abcdefghi", got)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("temp dir has %d entries after Close, want 0", len(entries))
	}
}

func TestBuffer_Max(t *testing.T) {
	b := New(Options{Threshold: 2, Max: 5, Dir: t.TempDir()})
	defer b.Close()
	if _, err := b.Write([]byte("abcde")); err != nil {
		t.Fatalf("Write() at max error = %v", err)
	}
	if err := b.WriteByte('f'); !errors.Is(err, ErrTooLarge) {
		t.Errorf("WriteByte() past max error = %v, want ErrTooLarge", err)
	}
}

func TestBuffer_CloseRemovesFile(t *testing.T) {
	dir := t.TempDir()
	b := New(Options{Threshold: 1, Dir: dir, Pattern: "chunk-*.tmp"})
	if _, err := b.Write([]byte("xyz")); err != nil {
		t.Fatal(err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "chunk-*.tmp"))
	if len(matches) != 1 {
		t.Fatalf("temp files = %v, want one", matches)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	matches, _ = filepath.Glob(filepath.Join(dir, "chunk-*.tmp"))
	if len(matches) != 0 {
		t.Errorf("temp files after Close = %v", matches)
	}
}
