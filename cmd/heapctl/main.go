// Command heapctl inspects, verifies, diffs and patches heap snapshot files.
package main

func main() {
	execute()
}
