// Package origin abstracts the slow source the feed controller pulls work
// items from: a mounted directory (SD card, network share) or a remote
// service. Fetch must leave a complete file at dest or return an error;
// partial files are the caller's concern via temp-and-rename.
package origin

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Origin fetches one item by id into a local destination path.
type Origin interface {
	Fetch(ctx context.Context, id, dest string) error
}

// Dir is an Origin backed by a directory; the item id is the file name
// relative to the root.
type Dir struct {
	Root string
}

// NewDir returns a directory-backed origin.
func NewDir(root string) *Dir {
	return &Dir{Root: root}
}

// Fetch copies root/id to dest.
func (d *Dir) Fetch(ctx context.Context, id, dest string) error {
	src, err := os.Open(filepath.Join(d.Root, id))
	if err != nil {
		return fmt.Errorf("failed to open source %s: %w", id, err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	_, err = copyWithContext(ctx, out, src)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to copy %s: %w", id, err)
	}
	return nil
}

// copyWithContext copies src to dst, checking for cancellation between
// buffer-sized chunks.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[:nr])
			written += int64(nw)
			if ew != nil {
				return written, ew
			}
		}
		if err != nil {
			if err == io.EOF {
				return written, nil
			}
			return written, err
		}
	}
}
