//go:build !unix

package snapfile

import "os"

// Map reads the entire file when mmap is not available.
func Map(path string) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, func() error { return nil }, err
	}
	return data, func() error { return nil }, nil
}

// Write stores data at path.
func Write(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
