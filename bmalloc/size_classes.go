package bmalloc

const (
	// SmallMax is the largest request served from small pages.
	SmallMax = 1024

	// smallStep is the distance between small size classes and the alignment
	// of every small object.
	smallStep = 16

	numSmallClasses = SmallMax / smallStep
)

// smallClassFor maps a request of size bytes, 0 < size <= SmallMax, to its
// class.
func smallClassFor(size int) int { return (size - 1) / smallStep }

func smallObjectSize(class int) int { return (class + 1) * smallStep }

// ObjectSize returns the bytes actually reserved for a request of size bytes.
// Large requests are rounded to pageSize.
func ObjectSize(size, pageSize int) int {
	if size <= SmallMax {
		return smallObjectSize(smallClassFor(size))
	}
	return (size + pageSize - 1) &^ (pageSize - 1)
}
