//go:build unix && !linux

package vmem

import "golang.org/x/sys/unix"

const purgeZeroes = false

// purgePages zeroes mem before the advice. Darwin and the BSDs may hand the
// old contents back after MADV_DONTNEED, so the advice only hints that the
// pages can be reclaimed.
func purgePages(mem []byte) error {
	clear(mem)
	return unix.Madvise(mem, unix.MADV_DONTNEED)
}
