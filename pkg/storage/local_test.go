package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return s
}

func writeString(t *testing.T, s FileStore, path, data string) {
	t.Helper()
	w, err := s.Write(context.Background(), path)
	if err != nil {
		t.Fatalf("Write %s: %v", path, err)
	}
	if _, err := io.WriteString(w, data); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}

func readString(t *testing.T, s FileStore, path string) string {
	t.Helper()
	r, err := s.Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read %s: %v", path, err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestLocalWriteRead(t *testing.T) {
	s := newTestLocal(t)
	writeString(t, s, "a/b/file.txt", "hello, storage")

	if got := readString(t, s, "a/b/file.txt"); got != "hello, storage" {
		t.Errorf("read = %q", got)
	}
	want := filepath.Join(s.Root(), "a", "b", "file.txt")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("file not on disk: %v", err)
	}
	if got := s.Path("a/b/file.txt"); got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}

func TestLocalWriteIsSeekable(t *testing.T) {
	s := newTestLocal(t)
	w, err := s.Write(context.Background(), "seek.bin")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	defer w.Close()
	if _, ok := w.(io.WriteSeeker); !ok {
		t.Error("local writer is not an io.WriteSeeker")
	}
}

func TestLocalMissing(t *testing.T) {
	s := newTestLocal(t)
	if _, err := s.Read(context.Background(), "missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read missing: got %v, want os.ErrNotExist", err)
	}

	ok, err := s.Exists(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("Exists reported a missing file")
	}
}

func TestMirror(t *testing.T) {
	src := newTestLocal(t)
	writeString(t, src, "session_x/a.wav", "AAAA")
	writeString(t, src, "session_x/b.txt", "BB")

	dst := NewS3(newFakeS3(), "bucket", "archive")
	if err := Mirror(context.Background(), dst, src, []string{"session_x/a.wav", "session_x/b.txt"}); err != nil {
		t.Fatalf("Mirror: %v", err)
	}

	if got := readString(t, dst, "session_x/a.wav"); got != "AAAA" {
		t.Errorf("a.wav = %q", got)
	}
	if got := readString(t, dst, "session_x/b.txt"); got != "BB" {
		t.Errorf("b.txt = %q", got)
	}
}

func TestMirrorReportsFailingPath(t *testing.T) {
	src := newTestLocal(t)
	dst := newTestLocal(t)
	err := Mirror(context.Background(), dst, src, []string{"gone.wav"})
	if err == nil {
		t.Fatal("expected error for missing source")
	}
	if !strings.Contains(err.Error(), "gone.wav") {
		t.Errorf("error %q does not name the path", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error %v does not wrap os.ErrNotExist", err)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	w, err := m.Write(context.Background(), "b.txt")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := io.WriteString(w, "bee"); err != nil {
		t.Fatalf("write: %v", err)
	}

	ok, err := m.Exists(context.Background(), "b.txt")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("visible before close")
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	writeString(t, m, "a.txt", "ay")

	if want := []string{"a.txt", "b.txt"}; !slices.Equal(m.Paths(), want) {
		t.Errorf("Paths = %v, want %v", m.Paths(), want)
	}
	if got := readString(t, m, "b.txt"); got != "bee" {
		t.Errorf("b.txt = %q", got)
	}
	if _, ok := w.(io.WriteSeeker); ok {
		t.Error("memory writer should not be seekable")
	}
}
