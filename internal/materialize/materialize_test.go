package materialize

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestMaterializeWritesDestination(t *testing.T) {
	tmpDir := t.TempDir()
	outDir := t.TempDir()
	writer := NewWriter(tmpDir)

	dst := filepath.Join(outDir, "a.bin")
	payload := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	if err := writer.Materialize(dst, payload); err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("destination content = %v, want %v", got, payload)
	}

	// The temporary file must be gone after the rename.
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("read tmp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temporary directory not empty after rename: %v", entries)
	}
}

func TestMaterializeCreatesParentDirectories(t *testing.T) {
	base := t.TempDir()
	writer := NewWriter(filepath.Join(base, "staging", "recv-0"))

	dst := filepath.Join(base, "out", "video", "1080p", "segment.m4s")
	if err := writer.Materialize(dst, []byte("moof")); err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("destination missing: %v", err)
	}
}

func TestMaterializeReplacesExistingFile(t *testing.T) {
	outDir := t.TempDir()
	writer := NewWriter(t.TempDir())

	dst := filepath.Join(outDir, "manifest.mpd")
	if err := os.WriteFile(dst, []byte("old content"), 0644); err != nil {
		t.Fatalf("seed existing file: %v", err)
	}

	if err := writer.Materialize(dst, []byte("new")); err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if string(got) != "new" {
		t.Fatalf("destination = %q, want %q", got, "new")
	}
}

func TestMaterializeEmptyPayload(t *testing.T) {
	tmpDir := t.TempDir()
	outDir := t.TempDir()
	writer := NewWriter(tmpDir)

	dst := filepath.Join(outDir, "empty.bin")
	err := writer.Materialize(dst, nil)
	if !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("err = %v, want ErrEmptyPayload", err)
	}

	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Fatalf("destination should not exist, stat err = %v", statErr)
	}
	entries, _ := os.ReadDir(tmpDir)
	if len(entries) != 0 {
		t.Fatalf("no temporary file should be created for an empty payload: %v", entries)
	}
}

// TestSequenceAdvancesPerMaterialization pins the temporary-name scheme:
// transfers sharing a basename get distinct temp names because the counter
// increments on every materialization.
func TestSequenceAdvancesPerMaterialization(t *testing.T) {
	tmpDir := t.TempDir()
	outDir := t.TempDir()
	writer := NewWriter(tmpDir)

	for i := 0; i < 3; i++ {
		dst := filepath.Join(outDir, "same-name.bin")
		if err := writer.Materialize(dst, []byte{byte(i)}); err != nil {
			t.Fatalf("Materialize %d: %v", i, err)
		}
	}

	if writer.seq != 3 {
		t.Fatalf("sequence = %d after 3 materializations, want 3", writer.seq)
	}
}

func TestMaterializeInvalidDestination(t *testing.T) {
	outDir := t.TempDir()
	writer := NewWriter(t.TempDir())

	// A destination whose parent is a regular file cannot be created.
	blocker := filepath.Join(outDir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("seed blocker file: %v", err)
	}

	err := writer.Materialize(filepath.Join(blocker, "child.bin"), []byte("data"))
	if err == nil {
		t.Fatal("expected an error for a destination under a regular file")
	}
}
