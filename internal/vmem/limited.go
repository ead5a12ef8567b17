package vmem

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// Limited wraps a Mapper and fails Map once more than limit bytes would be
// mapped at the same time. Useful to exercise exhaustion paths.
type Limited struct {
	Mapper

	mu     sync.Mutex
	limit  int
	mapped int
}

// NewLimited returns m capped at limit mapped bytes.
func NewLimited(m Mapper, limit int) *Limited {
	return &Limited{Mapper: m, limit: limit}
}

// Map forwards to the wrapped Mapper when the budget allows it.
func (l *Limited) Map(size, alignment int) (Region, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mapped+size > l.limit {
		return Region{}, errors.Wrapf(ErrExhausted, "limit %d, mapped %d, requested %d", l.limit, l.mapped, size)
	}
	r, err := l.Mapper.Map(size, alignment)
	if err != nil {
		return Region{}, err
	}
	l.mapped += r.Len()
	return r, nil
}

// Unmap forwards and returns the region's bytes to the budget.
func (l *Limited) Unmap(r Region) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mapped -= r.Len()
	return l.Mapper.Unmap(r)
}

// Mapped returns the bytes currently mapped through l.
func (l *Limited) Mapped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mapped
}
