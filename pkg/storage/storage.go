// Package storage defines the FileStore interface the session recorder
// writes through. Finished sessions live on local disk; an S3-compatible
// store can receive a mirrored copy of a session directory.
package storage

import (
	"context"
	"fmt"
	"io"
)

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading.
	// The caller must close the returned ReadCloser when done.
	// If the file does not exist, an error wrapping os.ErrNotExist is returned.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing, truncating any existing file
	// and creating parent directories. The caller must close the returned
	// WriteCloser to flush data.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// Mirror copies each path from src to dst under the same name.
// It stops at the first failure and reports which path failed.
func Mirror(ctx context.Context, dst, src FileStore, paths []string) error {
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyOne(ctx, dst, src, p); err != nil {
			return fmt.Errorf("storage: mirror %s: %w", p, err)
		}
	}
	return nil
}

func copyOne(ctx context.Context, dst, src FileStore, path string) error {
	r, err := src.Read(ctx, path)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := dst.Write(ctx, path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
