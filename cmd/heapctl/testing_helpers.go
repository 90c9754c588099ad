package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joshuapare/heapkit/heap"
)

// writeSnapshot serializes a to a file in a temp dir and returns its path.
func writeSnapshot(t *testing.T, a *heap.Allocator, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, a.Serialize(), 0o644); err != nil {
		t.Fatalf("failed to write snapshot: %v", err)
	}
	return path
}

// runCLI runs heapctl with args, resetting flag state first, and returns
// captured stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	verbose, quiet, jsonOut = false, false, false
	diffOutput, applyOutput = "", ""
	rootCmd.SetArgs(args)
	return captureOutput(t, rootCmd.Execute)
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	// Drain concurrently so large outputs cannot fill the pipe.
	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.String()
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout

	return <-done, fnErr
}

// assertJSON checks that output is valid JSON and returns it decoded
func assertJSON(t *testing.T, output string) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Errorf("output is not valid JSON: %v\nOutput: %s", err, output)
	}
	return result
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, exp := range expected {
		if !strings.Contains(output, exp) {
			t.Errorf("output missing expected string %q\nOutput: %s", exp, output)
		}
	}
}
