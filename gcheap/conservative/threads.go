package conservative

import (
	"slices"
	"sync"
)

// StackSource yields the words of one stack.
type StackSource interface {
	Words() []uintptr
}

// StackFunc adapts a function to StackSource.
type StackFunc func() []uintptr

// Words calls f.
func (f StackFunc) Words() []uintptr { return f() }

// Stack is a growable slot array usable as a StackSource. It is safe for
// concurrent use.
type Stack struct {
	mu    sync.Mutex
	words []uintptr
}

// NewStack returns an empty stack.
func NewStack() *Stack { return &Stack{} }

// Push appends words and returns the new depth.
func (s *Stack) Push(words ...uintptr) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.words = append(s.words, words...)
	return len(s.words)
}

// Truncate drops every slot at or above depth n.
func (s *Stack) Truncate(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n < len(s.words) {
		clear(s.words[n:])
		s.words = s.words[:n]
	}
}

// Len returns the current depth.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.words)
}

// Words returns a copy of the slots.
func (s *Stack) Words() []uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.words)
}

// Thread is a registered stack.
type Thread struct {
	id   uint64
	name string
	src  StackSource
}

// Name returns the name given at registration.
func (t *Thread) Name() string { return t.name }

// ID returns the registration number, unique per registry.
func (t *Thread) ID() uint64 { return t.id }

// MachineThreads is the registry of stacks scanned for roots.
type MachineThreads struct {
	mu      sync.Mutex
	threads []*Thread
	nextID  uint64
}

// NewMachineThreads returns an empty registry.
func NewMachineThreads() *MachineThreads {
	return &MachineThreads{}
}

// AddCurrentThread registers src under name.
func (m *MachineThreads) AddCurrentThread(name string, src StackSource) *Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := &Thread{id: m.nextID, name: name, src: src}
	m.threads = append(m.threads, t)
	return t
}

// RemoveThread unregisters t and reports whether it was registered.
func (m *MachineThreads) RemoveThread(t *Thread) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.Index(m.threads, t)
	if i < 0 {
		return false
	}
	m.threads = slices.Delete(m.threads, i, i+1)
	return true
}

// Threads returns the registered threads in registration order.
func (m *MachineThreads) Threads() []*Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.threads)
}

// GatherConservativeRoots offers every word of every registered stack to r.
// The registry stays locked for the walk so that no stack is added or removed
// halfway.
func (m *MachineThreads) GatherConservativeRoots(r *Roots) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.threads {
		r.AddSpan(t.src.Words())
	}
}
