// Package ordering defines the total order used to compare and sort digest bytes.
//
// The order is lexicographic over the shared prefix, starting at index 0. When
// one sequence is a prefix of the other, the longer sequence is greater. This
// makes digests of different algorithms comparable (they simply differ in
// length) and keeps the order stable for sorted collections and binary search.
package ordering

import (
	"bytes"
	"slices"
)

// Compare returns -1, 0 or 1 depending on whether left sorts before, equal to,
// or after right.
func Compare(left, right []byte) int {
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	for i := 0; i < n; i++ {
		switch {
		case left[i] < right[i]:
			return -1
		case left[i] > right[i]:
			return 1
		}
	}
	switch {
	case len(left) < len(right):
		return -1
	case len(left) > len(right):
		return 1
	default:
		return 0
	}
}

// Equal reports whether left and right hold the same bytes.
func Equal(left, right []byte) bool {
	return bytes.Equal(left, right)
}

// Less reports whether left sorts strictly before right.
func Less(left, right []byte) bool {
	return Compare(left, right) < 0
}

// Sort sorts items in place.
func Sort(items [][]byte) {
	slices.SortStableFunc(items, Compare)
}

// SortFunc sorts items in place by the bytes key returns for each item.
func SortFunc[T any](items []T, key func(T) []byte) {
	slices.SortStableFunc(items, func(a, b T) int {
		return Compare(key(a), key(b))
	})
}

// IsSorted reports whether items are in ascending order.
func IsSorted(items [][]byte) bool {
	return slices.IsSortedFunc(items, Compare)
}

// Search returns the index of target in the sorted items and whether it was found.
// When not found, the index is the position where target would be inserted.
func Search(items [][]byte, target []byte) (int, bool) {
	return slices.BinarySearchFunc(items, target, Compare)
}
