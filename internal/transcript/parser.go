package transcript

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
)

// maxLineSize bounds a single transcript line. Tool results embedding whole
// files routinely exceed the default scanner limit.
const maxLineSize = 64 * 1024 * 1024

// ReadFile parses a transcript file. See Read.
func ReadFile(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	return Read(file)
}

// Read parses JSONL records in line order, skipping blank lines. A line that
// does not decode fails the whole read; no partial transcript is returned.
func Read(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	records := []Record{}
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		rec, err := DecodeRecord(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error after line %d: %w", lineNum, err)
	}
	return records, nil
}
