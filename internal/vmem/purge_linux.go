//go:build linux

package vmem

import "golang.org/x/sys/unix"

// purgeZeroes reports whether purgePages alone zero-fills.
const purgeZeroes = true

// purgePages drops the pages behind mem. Linux maps private anonymous pages
// back in zero-filled after MADV_DONTNEED.
func purgePages(mem []byte) error {
	return unix.Madvise(mem, unix.MADV_DONTNEED)
}
