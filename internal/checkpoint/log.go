// Package checkpoint implements the append-only, crash-safe record store
// that makes collection runs resumable. Each record is a single JSON line;
// a malformed trailing line (from a crash mid-write) is skipped on read
// rather than failing the whole load.
package checkpoint

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nikhilgg/oss-transparency/internal/domain"
)

// Log is a JSONL checkpoint store keyed by work-unit identity. Appends are
// serialized so that two workers never interleave a partial record; the file
// is only ever appended to, never rewritten.
type Log struct {
	mu   sync.Mutex
	path string
	file *os.File

	// retryFailures excludes errored units from the done set so a rerun
	// reattempts them. Off by default: a unit with any record, including an
	// errored one, counts as done.
	retryFailures bool
}

// Open opens (or creates) a checkpoint log at path for appending
func Open(path string, retryFailures bool) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint log %s: %w", path, err)
	}
	return &Log{path: path, file: file, retryFailures: retryFailures}, nil
}

// Path returns the on-disk location of the log
func (l *Log) Path() string {
	return l.path
}

// Append writes one record as a single atomic line and syncs it to disk.
// Concurrent callers are mutually excluded.
func (l *Log) Append(rec *domain.CheckpointRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal checkpoint record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append checkpoint record: %w", err)
	}
	return l.file.Sync()
}

// LoadDoneIDs returns the set of unit IDs that should not be reattempted.
// With retryFailures enabled, errored units are left out of the set.
func (l *Log) LoadDoneIDs() (map[string]struct{}, error) {
	done := make(map[string]struct{})
	err := l.scan(func(rec *domain.CheckpointRecord) {
		if l.retryFailures && rec.Status == domain.StatusErrored {
			return
		}
		done[rec.UnitID] = struct{}{}
	})
	if err != nil {
		return nil, err
	}
	return done, nil
}

// LoadAll returns every record in the log, in append order. The aggregate
// dataset is always rebuilt from this full sequence, never from in-memory
// state of the current run.
func (l *Log) LoadAll() ([]*domain.CheckpointRecord, error) {
	var records []*domain.CheckpointRecord
	err := l.scan(func(rec *domain.CheckpointRecord) {
		records = append(records, rec)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the underlying file
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func (l *Log) scan(visit func(*domain.CheckpointRecord)) error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open checkpoint log %s: %w", l.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec domain.CheckpointRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// Partial trailing entry from a prior crash: skip, don't fail.
			continue
		}
		if rec.UnitID == "" {
			continue
		}
		visit(&rec)
	}
	return scanner.Err()
}
