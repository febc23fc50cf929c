package helpers

import (
	"reflect"
)

// Sizeof returns the in-memory size of the type of v in bytes.
func Sizeof[T any](v T) int {
	return int(reflect.TypeOf(v).Size())
}
