package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nugget/relaybot/examples"
)

// runInit prepares dir for a first run: the example config and the
// artifact directory. Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing relaybot in %s\n", dir)

	artifactsDir := filepath.Join(dir, "artifacts")
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", artifactsDir, err)
	}
	fmt.Fprintf(w, "  ✓ %s/\n", artifactsDir)

	// The config holds credentials.
	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, examples.ConfigYAML, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Set llm.api_key and gateway.token in config.yaml, then run: relaybot serve")
	return nil
}

// writeIfMissing writes content to path only if the file does not exist.
func writeIfMissing(path string, content []byte, perm os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
