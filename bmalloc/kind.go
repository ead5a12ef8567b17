package bmalloc

import "github.com/cockroachdb/errors"

// HeapKind selects one of the allocator's heaps.
type HeapKind int

const (
	Primary HeapKind = iota
	PrimitiveGigacage
	JSValueGigacage

	// NumHeapKinds is the number of heaps every Allocator owns.
	NumHeapKinds = int(JSValueGigacage) + 1
)

func (k HeapKind) String() string {
	switch k {
	case Primary:
		return "primary"
	case PrimitiveGigacage:
		return "primitive-gigacage"
	case JSValueGigacage:
		return "jsvalue-gigacage"
	default:
		return "unknown"
	}
}

// ParseHeapKind is the inverse of HeapKind.String.
func ParseHeapKind(s string) (HeapKind, error) {
	for k := range HeapKind(NumHeapKinds) {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, errors.Newf("bmalloc: unknown heap kind %q", s)
}

func (k HeapKind) valid() bool { return k >= 0 && int(k) < NumHeapKinds }
