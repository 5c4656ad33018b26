// Package artifact reads and writes the CSV files produced by generation tasks.
package artifact

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/socialseed/graphseed/internal/common/seederrors"
)

const (
	csvExtension    = ".csv"
	snappyExtension = ".sz"
)

// Store resolves artifact references relative to a root directory.
type Store struct {
	root     string
	compress bool
}

func NewStore(root string, compress bool) *Store {
	return &Store{root: root, compress: compress}
}

func (s *Store) Root() string {
	return s.root
}

// Ref names the artifact for the index-th range of a phase, e.g. "users/users_3.csv".
func (s *Store) Ref(phase string, index int) string {
	name := fmt.Sprintf("%s_%d%s", phase, index, csvExtension)
	if s.compress {
		name += snappyExtension
	}
	return filepath.ToSlash(filepath.Join(phase, name))
}

// PhaseOf returns the phase a ref was written under.
func PhaseOf(ref string) string {
	phase, _, _ := strings.Cut(filepath.ToSlash(ref), "/")
	return phase
}

func (s *Store) path(ref string) string {
	return filepath.Join(s.root, filepath.FromSlash(ref))
}

// Write stores header and rows under ref. The file is written to a temporary name and renamed into place.
func (s *Store) Write(ref string, header []string, rows [][]string) error {
	target := s.path(ref)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.WithStack(err)
	}
	f, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".tmp-*")
	if err != nil {
		return errors.WithStack(err)
	}
	tmpName := f.Name()
	if err := writeCSV(f, strings.HasSuffix(ref, snappyExtension), header, rows); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return errors.WithMessagef(err, "writing artifact %s", ref)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmpName, target))
}

func writeCSV(f *os.File, compressed bool, header []string, rows [][]string) error {
	var out io.Writer
	var flush func() error
	if compressed {
		sw := snappy.NewBufferedWriter(f)
		out, flush = sw, sw.Close
	} else {
		bw := bufio.NewWriter(f)
		out, flush = bw, bw.Flush
	}
	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return errors.WithStack(err)
	}
	if err := w.WriteAll(rows); err != nil {
		return errors.WithStack(err)
	}
	if err := flush(); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(f.Sync())
}

// Read returns the header and rows stored under ref. A missing file is reported as *seederrors.ErrNotFound.
func (s *Store) Read(ref string) ([]string, [][]string, error) {
	f, err := os.Open(s.path(ref))
	if os.IsNotExist(err) {
		return nil, nil, &seederrors.ErrNotFound{Type: "artifact", Value: ref}
	} else if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	defer f.Close()

	var in io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(ref, snappyExtension) {
		in = snappy.NewReader(in)
	}
	records, err := csv.NewReader(in).ReadAll()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "parsing artifact %s", ref)
	}
	if len(records) == 0 {
		return nil, nil, errors.Errorf("artifact %s has no header", ref)
	}
	return records[0], records[1:], nil
}

// Remove deletes the artifact, ignoring one that is already gone.
func (s *Store) Remove(ref string) error {
	err := os.Remove(s.path(ref))
	if err != nil && !os.IsNotExist(err) {
		return errors.WithStack(err)
	}
	return nil
}
