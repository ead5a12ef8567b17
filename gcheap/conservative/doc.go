// Package conservative finds GC roots by scanning registered stacks for words
// that look like cell addresses.
//
// A word is a root only when it is the exact start of a live cell in the
// scanned Space. Interior pointers, addresses of free cells and addresses
// outside every block are ignored, so scanning never resurrects garbage and
// never pins unrelated memory.
//
// MachineThreads is the registry of stacks. Go gives no access to goroutine
// stacks, so each registered thread supplies its own StackSource; Stack is a
// ready-made one for mutators that keep their references in a slot array.
//
// Collector ties scanning to a Space:
//
//	threads := conservative.NewMachineThreads()
//	stack := conservative.NewStack()
//	threads.AddCurrentThread("main", stack)
//
//	sp, _ := gcheap.New(gcheap.Options{
//	    Collector: &conservative.Collector{Threads: threads, Transitive: true},
//	})
package conservative
