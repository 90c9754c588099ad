// Package snapfile reads and writes snapshot and patch files. On unix the
// files are memory-mapped so a large snapshot can be diffed or verified
// without copying it onto the Go heap; other platforms read and write the
// file whole.
package snapfile
