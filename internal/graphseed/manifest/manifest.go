// Package manifest maintains the newline-delimited list of artifacts awaiting import.
//
// A generation phase creates the manifest and appends one reference per successful range through a single
// Writer. The load pipeline then drains it, rewriting the file after each artifact so that an interrupted
// drain can be resumed from what is left.
package manifest

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/socialseed/graphseed/internal/common/seederrors"
)

const FileName = "manifest.txt"

// Path returns the manifest location inside a work directory.
func Path(workDir string) string {
	return filepath.Join(workDir, FileName)
}

// Writer serialises appends from concurrent tasks through one goroutine.
type Writer struct {
	path    string
	file    *os.File
	entries chan string
	done    chan struct{}

	mu      sync.Mutex
	written int
	err     error
}

// Create truncates (or creates) the manifest at path and starts its writer goroutine.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.WithStack(err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	w := &Writer{
		path:    path,
		file:    f,
		entries: make(chan string, 64),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Writer) run() {
	defer close(w.done)
	bw := bufio.NewWriter(w.file)
	for ref := range w.entries {
		if w.failed() {
			continue
		}
		_, err := bw.WriteString(ref + "\n")
		if err == nil {
			// Flushed per entry so the manifest on disk never lags behind completed tasks.
			err = bw.Flush()
		}
		w.mu.Lock()
		if err != nil {
			w.err = errors.Wrapf(err, "appending %s to manifest %s", ref, w.path)
			log.WithError(w.err).Error("manifest append failed")
		} else {
			w.written++
		}
		w.mu.Unlock()
	}
}

func (w *Writer) failed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err != nil
}

// Append queues ref for writing. It must not be called after Close.
func (w *Writer) Append(ref string) {
	w.entries <- ref
}

// Close waits for queued entries to be written and returns how many were, along with the first write error.
func (w *Writer) Close() (int, error) {
	close(w.entries)
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil && w.err == nil {
		w.err = errors.WithStack(err)
	}
	if err := w.file.Close(); err != nil && w.err == nil {
		w.err = errors.WithStack(err)
	}
	return w.written, w.err
}

// Read returns the manifest entries in stored order. A missing manifest is reported as *seederrors.ErrNotFound.
func Read(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, &seederrors.ErrNotFound{Type: "manifest", Value: path, Message: "nothing was generated or it was already drained"}
	} else if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	var refs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			refs = append(refs, line)
		}
	}
	return refs, errors.WithStack(scanner.Err())
}

// Rewrite atomically replaces the manifest contents with refs.
func Rewrite(path string, refs []string) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.WithStack(err)
	}
	tmpName := f.Name()
	bw := bufio.NewWriter(f)
	for _, ref := range refs {
		if _, err = bw.WriteString(ref + "\n"); err != nil {
			break
		}
	}
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "rewriting manifest %s", path)
	}
	return errors.WithStack(os.Rename(tmpName, path))
}

// Delete removes the manifest. Deleting a missing manifest is not an error.
func Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.WithStack(err)
	}
	return nil
}
