package fileutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	return string(data)
}

// onlyFile fails unless dir holds exactly the named file.
func onlyFile(t *testing.T, dir, name string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != name {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory holds %v, want only %s", names, name)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deck.pptx")

	if err := WriteFile(path, []byte("first"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := WriteFile(path, []byte("second"), 0o644); err != nil {
		t.Fatalf("second WriteFile failed: %v", err)
	}
	if got := readFile(t, path); got != "second" {
		t.Errorf("content = %q", got)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("mode = %v", info.Mode().Perm())
	}
	onlyFile(t, dir, "deck.pptx")
}

func TestWrite_FailureKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deck.pptx")
	if err := os.WriteFile(path, []byte("previous"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	boom := errors.New("export failed")
	err := Write(path, 0o644, func(w io.Writer) error {
		if _, err := w.Write([]byte("partial")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Write err = %v, want %v", err, boom)
	}
	if got := readFile(t, path); got != "previous" {
		t.Errorf("content after failed fill = %q", got)
	}
	onlyFile(t, dir, "deck.pptx")
}

func TestWrite_RenameFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deck.pptx")
	if err := os.WriteFile(path, []byte("previous"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	orig := osRename
	osRename = func(string, string) error { return errors.New("disk full") }
	defer func() { osRename = orig }()

	if err := WriteFile(path, []byte("new"), 0o644); err == nil {
		t.Fatal("expected error")
	}
	if got := readFile(t, path); got != "previous" {
		t.Errorf("content after failed rename = %q", got)
	}
	onlyFile(t, dir, "deck.pptx")
}

func TestWrite_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "deck.pptx")
	if err := WriteFile(path, []byte("x"), 0o644); err == nil {
		t.Fatal("expected error for a missing directory")
	}
}
