package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"go-arenakv/pkg/customerrors"
	"go-arenakv/util/helpers"

	"github.com/pkg/errors"
)

// NewLocalDirectory returns a directory backed by path on the local file
// system, creating it when missing.
func NewLocalDirectory(path string) (Directory, error) {
	if err := helpers.CreateDir(path); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory '%s'", path)
	}
	return &localDirectory{path: path}, nil
}

type localDirectory struct {
	path string
}

func (d *localDirectory) Name() string { return filepath.Base(d.path) }

func (d *localDirectory) Path() string { return d.path }

func (d *localDirectory) Delete() error {
	return errors.Wrap(os.RemoveAll(d.path), "failed to delete directory")
}

func (d *localDirectory) File(name string) (File, error) {
	p := filepath.Join(d.path, name)
	st, err := os.Stat(p)
	if os.IsNotExist(err) || (err == nil && st.IsDir()) {
		return nil, errors.Wrapf(customerrors.ErrNotFound, "file '%s'", p)
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to stat '%s'", p)
	}
	return &localFile{path: p}, nil
}

func (d *localDirectory) CreateFile(name string) (File, error) {
	p := filepath.Join(d.path, name)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create file '%s'", p)
	}
	if err := f.Close(); err != nil {
		return nil, errors.Wrapf(err, "failed to create file '%s'", p)
	}
	return &localFile{path: p}, nil
}

func (d *localDirectory) Directory(name string) (Directory, error) {
	p := filepath.Join(d.path, name)
	st, err := os.Stat(p)
	if os.IsNotExist(err) || (err == nil && !st.IsDir()) {
		return nil, errors.Wrapf(customerrors.ErrNotFound, "directory '%s'", p)
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to stat '%s'", p)
	}
	return &localDirectory{path: p}, nil
}

func (d *localDirectory) CreateDirectory(name string) (Directory, error) {
	return NewLocalDirectory(filepath.Join(d.path, name))
}

func (d *localDirectory) Files() ([]File, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list '%s'", d.path)
	}
	files := []File{}
	for _, e := range entries {
		// skip in-flight writes
		if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			files = append(files, &localFile{path: filepath.Join(d.path, e.Name())})
		}
	}
	return files, nil
}

func (d *localDirectory) Directories() ([]Directory, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list '%s'", d.path)
	}
	dirs := []Directory{}
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, &localDirectory{path: filepath.Join(d.path, e.Name())})
		}
	}
	return dirs, nil
}

type localFile struct {
	path string
}

func (f *localFile) Name() string { return filepath.Base(f.path) }

func (f *localFile) Delete() error {
	return errors.Wrap(os.Remove(f.path), "failed to delete file")
}

func (f *localFile) OpenRead() (io.ReadCloser, error) {
	r, err := os.Open(f.path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(customerrors.ErrNotFound, "file '%s'", f.path)
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to open '%s'", f.path)
	}
	return r, nil
}

// OpenWrite writes into a temporary sibling that replaces the file on Close.
func (f *localFile) OpenWrite() (io.WriteCloser, error) {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open '%s' for write", f.path)
	}
	return &localWriter{File: tmp, target: f.path}, nil
}

type localWriter struct {
	*os.File
	target string
}

func (w *localWriter) Close() error {
	if err := w.File.Sync(); err != nil {
		w.File.Close()
		os.Remove(w.File.Name())
		return errors.Wrap(err, "failed to sync file")
	}
	if err := w.File.Close(); err != nil {
		os.Remove(w.File.Name())
		return errors.Wrap(err, "failed to close file")
	}
	return errors.Wrap(os.Rename(w.File.Name(), w.target), "failed to replace file")
}
