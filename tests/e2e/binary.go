package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// FindProjectBinary locates the agconsole binary under test: $AGCONSOLE_BIN,
// then bin/agconsole at the module root, then $PATH.
func FindProjectBinary() (string, error) {
	if bin := os.Getenv("AGCONSOLE_BIN"); bin != "" {
		return bin, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			bin := filepath.Join(dir, "bin", "agconsole")
			if _, err := os.Stat(bin); err == nil {
				return bin, nil
			}
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if bin, err := exec.LookPath("agconsole"); err == nil {
		return bin, nil
	}
	return "", fmt.Errorf("agconsole binary not found: build it to bin/agconsole or set AGCONSOLE_BIN")
}
