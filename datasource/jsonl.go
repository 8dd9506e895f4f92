// Package datasource loads test cases from files.
package datasource

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/signalnine/gauntlet/eval"
)

const maxLineBytes = 16 << 20

// JSONL reads one case per line. Each line is an object with "input" and
// "expected" keys and an optional string "id". Blank lines are skipped.
type JSONL struct {
	Path string
}

func (j JSONL) Load(ctx context.Context) ([]eval.TestCase, error) {
	data, err := os.ReadFile(j.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", j.Path, err)
	}
	return ParseJSONL(data)
}

// ParseJSONL parses JSONL case data. Errors name the 1-based line.
func ParseJSONL(data []byte) ([]eval.TestCase, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var cases []eval.TestCase
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			return nil, fmt.Errorf("line %d: invalid json: %w", n, err)
		}
		if obj == nil {
			return nil, fmt.Errorf("line %d: expected object", n)
		}
		c, err := caseFromMap(obj)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		cases = append(cases, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning jsonl: %w", err)
	}
	return cases, nil
}

func caseFromMap(obj map[string]any) (eval.TestCase, error) {
	input, ok := obj["input"]
	if !ok {
		return eval.TestCase{}, fmt.Errorf("missing 'input'")
	}
	expected, ok := obj["expected"]
	if !ok {
		return eval.TestCase{}, fmt.Errorf("missing 'expected'")
	}
	id, _ := obj["id"].(string)
	return eval.TestCase{ID: id, Input: input, Expected: expected}, nil
}

// Open picks a loader by file extension: .jsonl or .ndjson for JSONL, .yaml
// or .yml for YAML.
func Open(path string) (eval.DataSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return JSONL{Path: path}, nil
	case ".yaml", ".yml":
		return YAML{Path: path}, nil
	}
	return nil, fmt.Errorf("unsupported data file %q: want .jsonl or .yaml", path)
}
