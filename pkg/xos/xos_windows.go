//go:build windows
// +build windows

// Package xos provides atomic file operations. On Windows a same-directory
// temp file plus rename is the closest available approximation.
package xos

import (
	"io"
	"os"
	"path/filepath"
)

// WriteFile writes data to the named file via a temp file in the same
// directory followed by a rename.
func WriteFile(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tempName, perm); err != nil {
		return err
	}

	// Rename is best-effort atomic on Windows; remove the target first so
	// the rename cannot fail on an existing file.
	os.Remove(filename)
	if err := os.Rename(tempName, filename); err != nil {
		return err
	}

	success = true
	return nil
}

// WriteReader streams data from a reader to the named file.
func WriteReader(filename string, r io.Reader, perm os.FileMode) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return WriteFile(filename, data, perm)
}
