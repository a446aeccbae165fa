package sink

import (
	"errors"
	"fmt"
	"io"
	"os"

	"voice-recorder/internal/audio/ogg"
)

var ErrSinkOpen = errors.New("sink open failed")

// PageWriter appends container pages to stable storage.
type PageWriter interface {
	WritePage(p ogg.Page) error
	Close() error
}

// pageFile is the part of *os.File the writer needs to roll back a short write.
type pageFile interface {
	io.WriteCloser
	Truncate(size int64) error
	Seek(offset int64, whence int) (int64, error)
}

// FileWriter appends pages to a file, one write per page.
type FileWriter struct {
	f       pageFile
	path    string
	written int64
}

// Create creates or truncates path.
func Create(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSinkOpen, err)
	}
	return newFileWriter(f, path), nil
}

func newFileWriter(f pageFile, path string) *FileWriter {
	return &FileWriter{f: f, path: path}
}

func (w *FileWriter) Path() string { return w.path }

// Written returns the number of bytes of complete pages in the file.
func (w *FileWriter) Written() int64 { return w.written }

// WritePage writes header and body in a single write. A short write is rolled
// back so the file always ends on a page boundary.
func (w *FileWriter) WritePage(p ogg.Page) error {
	if w.f == nil {
		return os.ErrClosed
	}
	n, err := w.f.Write(p.Bytes())
	if err != nil {
		if n > 0 {
			if rerr := w.rollback(); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}
		return fmt.Errorf("failed to write page %d: %w", p.Sequence(), err)
	}
	w.written += int64(n)
	return nil
}

// rollback cuts the file back to the last complete page and moves the
// write offset there.
func (w *FileWriter) rollback() error {
	if err := w.f.Truncate(w.written); err != nil {
		return fmt.Errorf("truncating partial page: %w", err)
	}
	if _, err := w.f.Seek(w.written, io.SeekStart); err != nil {
		return fmt.Errorf("seeking past last page: %w", err)
	}
	return nil
}

func (w *FileWriter) Close() error {
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
