// Package customerrors defines common errors for the arena, storage and
// index implementations to use.
package customerrors

import (
	"errors"
)

var (
	// ErrInvalidCapacity is returned when an arena, a region allocator or
	// a tree is configured with a capacity it cannot work with.
	ErrInvalidCapacity = errors.New("invalid capacity")

	// ErrInvalidSize is returned by allocators for non-positive requests.
	ErrInvalidSize = errors.New("invalid allocation size")

	// ErrInvalidReturn is returned when memory is given back out of
	// allocation order.
	ErrInvalidReturn = errors.New("only the most recent allocation can be returned")

	// ErrArenaExhausted is returned when growing the arena would push node
	// positions beyond what a 32-bit relative offset can reach.
	ErrArenaExhausted = errors.New("arena address space exhausted")

	// ErrBadMagic should be returned when a stream does not start with the
	// expected marker.
	ErrBadMagic = errors.New("bad magic number")

	ErrBadVersion = errors.New("unsupported format version")

	// ErrCorrupted is returned for checksum mismatches, truncated input and
	// structurally invalid data.
	ErrCorrupted = errors.New("corrupted data")

	ErrNotFound = errors.New("not found")
)
