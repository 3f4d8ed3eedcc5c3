// Package materialize turns a fully received payload into a durable file.
//
// The write protocol is temp-then-rename: the payload is written to a
// temporary file under the configured temporary directory and then renamed
// onto the destination in one atomic step. A reader of the destination path
// sees either no file, the previous file, or the complete new payload,
// never a partial write.
package materialize

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrEmptyPayload reports a transfer that carried a valid header but no
// payload bytes. No file is written; the caller logs it as a warning.
var ErrEmptyPayload = errors.New("empty payload, nothing to write")

// Writer materializes payloads under destination paths.
//
// The sequence counter feeds the temporary file name so that back-to-back
// transfers targeting the same basename never collide. It wraps at 65535 on
// purpose: the temporary name is discarded after a successful rename, so a
// wrapped value only risks colliding with a temp file that is still in
// flight, which the single-materialization-at-a-time model rules out.
//
// Writer is not safe for concurrent use; the reactor performs one
// materialization at a time.
type Writer struct {
	tmpDir string
	seq    uint16
}

// NewWriter creates a Writer that stages temporary files under tmpDir. The
// directory must be distinct per receiver process to avoid temporary-name
// collisions across processes.
func NewWriter(tmpDir string) *Writer {
	return &Writer{tmpDir: tmpDir}
}

// TmpDir returns the temporary staging directory.
func (w *Writer) TmpDir() string {
	return w.tmpDir
}

// Materialize writes payload to dstPath via a temporary file and an atomic
// rename.
//
// Missing parent directories of both the destination and the temporary
// path are created. A zero-length payload returns ErrEmptyPayload without
// touching the filesystem. Any filesystem failure aborts this
// materialization only; a partially written temporary file is removed on
// the way out.
func (w *Writer) Materialize(dstPath string, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}

	tmpPath := filepath.Join(w.tmpDir, filepath.Base(dstPath)+"."+strconv.FormatUint(uint64(w.seq), 10))
	w.seq++ // wraps at the uint16 limit; the name is discarded after rename

	if dir := filepath.Dir(dstPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create destination directory %q: %w", dir, err)
		}
	}
	if err := os.MkdirAll(w.tmpDir, 0755); err != nil {
		return fmt.Errorf("create temporary directory %q: %w", w.tmpDir, err)
	}

	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open temporary file %q: %w", tmpPath, err)
	}

	if _, err := file.Write(payload); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temporary file %q: %w", tmpPath, err)
	}

	// Close before rename so every byte has reached the temporary file
	// when the destination becomes visible.
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temporary file %q: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, dstPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename %q to %q: %w", tmpPath, dstPath, err)
	}

	return nil
}
