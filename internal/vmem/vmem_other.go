//go:build !unix

package vmem

// System returns GoHeap where anonymous mmap is not available.
func System() Mapper {
	return GoHeap()
}
