package storage

import (
	"io"

	"go-arenakv/pkg/compress"

	"github.com/pkg/errors"
)

// NewCompressedDirectory wraps dir so every file written through it is
// encoded with kind. Reads detect the codec from the stream marker, so
// files written with any kind stay readable.
func NewCompressedDirectory(dir Directory, kind compress.Kind) Directory {
	return &compressedDirectory{inner: dir, kind: kind}
}

type compressedDirectory struct {
	inner Directory
	kind  compress.Kind
}

func (d *compressedDirectory) Name() string { return d.inner.Name() }

func (d *compressedDirectory) Delete() error { return d.inner.Delete() }

func (d *compressedDirectory) File(name string) (File, error) {
	f, err := d.inner.File(name)
	if err != nil {
		return nil, err
	}
	return &compressedFile{File: f, kind: d.kind}, nil
}

func (d *compressedDirectory) CreateFile(name string) (File, error) {
	f, err := d.inner.CreateFile(name)
	if err != nil {
		return nil, err
	}
	return &compressedFile{File: f, kind: d.kind}, nil
}

func (d *compressedDirectory) Directory(name string) (Directory, error) {
	sub, err := d.inner.Directory(name)
	if err != nil {
		return nil, err
	}
	return NewCompressedDirectory(sub, d.kind), nil
}

func (d *compressedDirectory) CreateDirectory(name string) (Directory, error) {
	sub, err := d.inner.CreateDirectory(name)
	if err != nil {
		return nil, err
	}
	return NewCompressedDirectory(sub, d.kind), nil
}

func (d *compressedDirectory) Files() ([]File, error) {
	files, err := d.inner.Files()
	if err != nil {
		return nil, err
	}
	for i, f := range files {
		files[i] = &compressedFile{File: f, kind: d.kind}
	}
	return files, nil
}

func (d *compressedDirectory) Directories() ([]Directory, error) {
	dirs, err := d.inner.Directories()
	if err != nil {
		return nil, err
	}
	for i, sub := range dirs {
		dirs[i] = NewCompressedDirectory(sub, d.kind)
	}
	return dirs, nil
}

type compressedFile struct {
	File
	kind compress.Kind
}

func (f *compressedFile) OpenRead() (io.ReadCloser, error) {
	raw, err := f.File.OpenRead()
	if err != nil {
		return nil, err
	}
	dec, _, err := compress.NewFramedReader(raw)
	if err != nil {
		raw.Close()
		return nil, errors.Wrapf(err, "failed to open '%s'", f.Name())
	}
	return &stackedReader{ReadCloser: dec, under: raw}, nil
}

func (f *compressedFile) OpenWrite() (io.WriteCloser, error) {
	raw, err := f.File.OpenWrite()
	if err != nil {
		return nil, err
	}
	enc, err := compress.NewFramedWriter(raw, f.kind)
	if err != nil {
		raw.Close()
		return nil, errors.Wrapf(err, "failed to open '%s'", f.Name())
	}
	return &stackedWriter{WriteCloser: enc, under: raw}, nil
}

type stackedReader struct {
	io.ReadCloser
	under io.Closer
}

func (r *stackedReader) Close() error {
	err := r.ReadCloser.Close()
	if uerr := r.under.Close(); err == nil {
		err = uerr
	}
	return err
}

type stackedWriter struct {
	io.WriteCloser
	under io.Closer
}

func (w *stackedWriter) Close() error {
	if err := w.WriteCloser.Close(); err != nil {
		w.under.Close()
		return errors.Wrap(err, "failed to flush encoder")
	}
	return w.under.Close()
}
