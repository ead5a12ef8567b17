// Package buf contains bounds, rounding, and endian helpers shared by the allocators.
package buf

import (
	"encoding/binary"
	"math/bits"
)

// WordSize is the size of a uintptr in bytes.
const WordSize = bits.UintSize / 8

// U32LE reads a little-endian uint32 from b. Returns 0 when b is too short.
func U32LE(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// PutU32LE writes v to the first four bytes of b. Short buffers are left untouched.
func PutU32LE(b []byte, v uint32) {
	if len(b) < 4 {
		return
	}
	binary.LittleEndian.PutUint32(b, v)
}

// U64LE reads a little-endian uint64 from b. Returns 0 when b is too short.
func U64LE(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// PutU64LE writes v to the first eight bytes of b. Short buffers are left untouched.
func PutU64LE(b []byte, v uint64) {
	if len(b) < 8 {
		return
	}
	binary.LittleEndian.PutUint64(b, v)
}

// Word reads a little-endian machine word from b.
func Word(b []byte) uintptr {
	if WordSize == 4 {
		return uintptr(U32LE(b))
	}
	return uintptr(U64LE(b))
}

// PutWord writes a machine word to b in little-endian order.
func PutWord(b []byte, w uintptr) {
	if WordSize == 4 {
		PutU32LE(b, uint32(w))
		return
	}
	PutU64LE(b, uint64(w))
}
