package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// AppendJSONL appends v as one JSON line. Appends are the only non-atomic
// write the harness performs; each line is written in a single Write call so
// concurrent appenders interleave at line granularity.
func AppendJSONL(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	b := buf.Bytes()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write(b)
	return err
}

// ScanJSONL calls fn with each non-empty line. fn returning false stops the scan.
func ScanJSONL(path string, fn func(line []byte) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if strings.TrimSpace(string(sc.Bytes())) == "" {
			continue
		}
		if !fn(sc.Bytes()) {
			return nil
		}
	}
	return sc.Err()
}
