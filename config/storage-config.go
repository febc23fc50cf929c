package config

import "go-arenakv/pkg/compress"

type StorageConfig struct {
	// Compression applies to tree streams and snapshot resources.
	Compression compress.Kind
}

func NewStorageConfig() *StorageConfig {
	return &StorageConfig{
		Compression: compress.None,
	}
}
