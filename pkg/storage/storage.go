// Package storage provides the hierarchical resource store the arena and
// the tree persist into: directories holding named byte-stream files.
package storage

import (
	"io"
	"sort"
)

// Resource is a named node of the store.
type Resource interface {
	Name() string
	Delete() error
}

// File is a named byte stream. OpenWrite replaces the previous content;
// the new content becomes visible once the writer is closed.
type File interface {
	Resource
	OpenRead() (io.ReadCloser, error)
	OpenWrite() (io.WriteCloser, error)
}

// Directory holds files and sub-directories. Lookups of missing children
// fail with customerrors.ErrNotFound.
type Directory interface {
	Resource
	File(name string) (File, error)
	CreateFile(name string) (File, error)

	Directory(name string) (Directory, error)
	// CreateDirectory returns the existing directory when name is taken.
	CreateDirectory(name string) (Directory, error)

	Files() ([]File, error)
	Directories() ([]Directory, error)
}

func sortByName[T Resource](items []T) []T {
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name() < items[j].Name()
	})
	return items
}
