package store

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"dailybar/internal/domain"
)

// writeAtomic streams content produced by fill into a temp file next to path
// and renames it into place. Readers never observe a partial file.
func writeAtomic(path string, fill func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &domain.PersistenceError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return &domain.PersistenceError{Op: "create temp", Path: path, Err: err}
	}
	tmpPath := tmp.Name()

	bw := bufio.NewWriter(tmp)
	if err := fill(bw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &domain.PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &domain.PersistenceError{Op: "flush", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &domain.PersistenceError{Op: "close", Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &domain.PersistenceError{Op: "rename", Path: path, Err: fmt.Errorf("from %s: %w", tmpPath, err)}
	}
	return nil
}
