package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matsen/plib/internal/reference"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSONL lines (1MB per line).
const MaxJSONLLineCapacity = 1024 * 1024

// ReadJSONL reads paper records from a JSONL file, one per line.
func ReadJSONL(path string) ([]reference.Draft, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var papers []reference.Draft
	scanner := bufio.NewScanner(f)

	// Increase buffer size for long lines
	buf := make([]byte, MaxJSONLLineCapacity)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var d reference.Draft
		if err := json.Unmarshal(line, &d); err != nil {
			return nil, fmt.Errorf("parsing line %d: %w", lineNum, err)
		}
		papers = append(papers, d)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return papers, nil
}

// WriteJSONL writes paper records to w, one JSON object per line.
func WriteJSONL(w io.Writer, papers []reference.Draft) error {
	enc := json.NewEncoder(w)
	for i, d := range papers {
		if err := enc.Encode(d); err != nil {
			return fmt.Errorf("encoding paper %d: %w", i, err)
		}
	}
	return nil
}

// Export writes every stored paper to w as JSONL and returns the count.
func (s *Store) Export(ctx context.Context, w io.Writer) (int, error) {
	papers, err := s.Query(ctx, Filter{})
	if err != nil {
		return 0, err
	}
	if err := WriteJSONL(w, papers); err != nil {
		return 0, err
	}
	return len(papers), nil
}
