package buf

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// RoundUp rounds n up to the next multiple of align, which must be a power of two.
// ok is false when n is negative or the rounded value would overflow int.
func RoundUp(n, align int) (int, bool) {
	if n < 0 || !IsPowerOfTwo(align) {
		return 0, false
	}
	sum, ok := AddOverflowSafe(n, align-1)
	if !ok {
		return 0, false
	}
	return sum &^ (align - 1), true
}

// RoundDownPtr rounds an address down to a power-of-two boundary.
func RoundDownPtr(p uintptr, align int) uintptr {
	return p &^ uintptr(align-1)
}

// IsAlignedPtr reports whether p is a multiple of align.
func IsAlignedPtr(p uintptr, align int) bool {
	return p&uintptr(align-1) == 0
}
