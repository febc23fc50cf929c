package helpers

import "golang.org/x/exp/constraints"

func Min[T constraints.Ordered](numbers ...T) T {
	var min T = numbers[0]
	for _, n := range numbers {
		if n < min {
			min = n
		}
	}
	return min
}

func Max[T constraints.Ordered](numbers ...T) T {
	var max T = numbers[0]
	for _, n := range numbers {
		if n > max {
			max = n
		}
	}
	return max
}

// GetBit reports whether bit n (0 = least significant) of b is set.
func GetBit(b uint8, n int) bool {
	return b&(1<<n) != 0
}

func SetBit(b *uint8, n int, v bool) {
	if v {
		*b |= 1 << n
	} else {
		*b &^= 1 << n
	}
}
