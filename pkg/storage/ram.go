package storage

import (
	"bytes"
	"io"
	"sync"

	"go-arenakv/pkg/customerrors"

	"github.com/pkg/errors"
)

// NewRAMDirectory returns an empty in-memory directory.
func NewRAMDirectory(name string) Directory {
	return newRAMDirectory(name, nil)
}

func newRAMDirectory(name string, parent *ramDirectory) *ramDirectory {
	return &ramDirectory{
		name:   name,
		parent: parent,
		mu:     &sync.RWMutex{},
		files:  map[string]*ramFile{},
		dirs:   map[string]*ramDirectory{},
	}
}

type ramDirectory struct {
	name   string
	parent *ramDirectory

	mu    *sync.RWMutex
	files map[string]*ramFile
	dirs  map[string]*ramDirectory
}

func (d *ramDirectory) Name() string { return d.name }

func (d *ramDirectory) Delete() error {
	if d.parent == nil {
		d.mu.Lock()
		d.files = map[string]*ramFile{}
		d.dirs = map[string]*ramDirectory{}
		d.mu.Unlock()
		return nil
	}

	d.parent.mu.Lock()
	defer d.parent.mu.Unlock()
	delete(d.parent.dirs, d.name)
	return nil
}

func (d *ramDirectory) File(name string) (File, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if f, ok := d.files[name]; ok {
		return f, nil
	}
	return nil, errors.Wrapf(customerrors.ErrNotFound, "file '%s'", name)
}

func (d *ramDirectory) CreateFile(name string) (File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.files[name]; ok {
		return f, nil
	}
	f := &ramFile{name: name, parent: d, mu: &sync.RWMutex{}}
	d.files[name] = f
	return f, nil
}

func (d *ramDirectory) Directory(name string) (Directory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if sub, ok := d.dirs[name]; ok {
		return sub, nil
	}
	return nil, errors.Wrapf(customerrors.ErrNotFound, "directory '%s'", name)
}

func (d *ramDirectory) CreateDirectory(name string) (Directory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sub, ok := d.dirs[name]; ok {
		return sub, nil
	}
	sub := newRAMDirectory(name, d)
	d.dirs[name] = sub
	return sub, nil
}

func (d *ramDirectory) Files() ([]File, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	files := make([]File, 0, len(d.files))
	for _, f := range d.files {
		files = append(files, f)
	}
	return sortByName(files), nil
}

func (d *ramDirectory) Directories() ([]Directory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dirs := make([]Directory, 0, len(d.dirs))
	for _, sub := range d.dirs {
		dirs = append(dirs, sub)
	}
	return sortByName(dirs), nil
}

type ramFile struct {
	name   string
	parent *ramDirectory

	mu      *sync.RWMutex
	content []byte
	deleted bool
}

func (f *ramFile) Name() string { return f.name }

func (f *ramFile) Delete() error {
	f.mu.Lock()
	f.deleted = true
	f.content = nil
	f.mu.Unlock()

	f.parent.mu.Lock()
	defer f.parent.mu.Unlock()
	if f.parent.files[f.name] == f {
		delete(f.parent.files, f.name)
	}
	return nil
}

func (f *ramFile) OpenRead() (io.ReadCloser, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.deleted {
		return nil, errors.Wrapf(customerrors.ErrNotFound, "file '%s' was deleted", f.name)
	}
	return io.NopCloser(bytes.NewReader(f.content)), nil
}

func (f *ramFile) OpenWrite() (io.WriteCloser, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.deleted {
		return nil, errors.Wrapf(customerrors.ErrNotFound, "file '%s' was deleted", f.name)
	}
	return &ramWriter{file: f}, nil
}

type ramWriter struct {
	file *ramFile
	buf  bytes.Buffer
}

func (w *ramWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *ramWriter) Close() error {
	w.file.mu.Lock()
	defer w.file.mu.Unlock()
	w.file.content = w.buf.Bytes()
	return nil
}
