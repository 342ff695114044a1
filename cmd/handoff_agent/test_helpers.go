package main

import (
	"os"
	"path/filepath"
	"testing"
)

// getBinaryPath returns the path to the handoff_agent binary for testing
func getBinaryPath(t *testing.T) string {
	binaryName := "handoff_agent"
	if testing.Short() {
		t.Skip("Skipping CLI tests in short mode")
	}

	binaryPath := filepath.Join("..", "..", "bin", binaryName)
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		t.Skipf("Binary not found at %s, build it first with 'go build -o bin/handoff_agent ./cmd/handoff_agent'", binaryPath)
	}

	return binaryPath
}

// writeTemp writes content to name inside a fresh temp dir and returns its path
func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}
