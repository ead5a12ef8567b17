// Command heapctl inspects and exercises the heapkit allocators.
package main

func main() {
	execute()
}
