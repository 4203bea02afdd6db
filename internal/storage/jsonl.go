package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/PeterTheOne/honeyswap-farm/internal/model"
)

// JsonlStorage appends records to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutCreationBatch appends a batch of creation records as JSON lines.
func (s *JsonlStorage) PutCreationBatch(records []model.CreationRecord) error {
	return appendJSONL(s, records)
}

// PutClassificationBatch appends a batch of address classifications as JSON lines.
func (s *JsonlStorage) PutClassificationBatch(records []model.AddressClassification) error {
	return appendJSONL(s, records)
}

func appendJSONL[T any](s *JsonlStorage, records []T) error {
	if len(records) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}

// LoadCreationRecords reads previously written records keyed by PairKey.
// A missing file yields an empty map.
func (s *JsonlStorage) LoadCreationRecords() (map[string]model.CreationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]model.CreationRecord)
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("open creation records: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var record model.CreationRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("parse creation record line %d: %w", lineNo, err)
		}
		out[PairKey(record.PairAddress)] = record
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan creation records: %w", err)
	}
	return out, nil
}
