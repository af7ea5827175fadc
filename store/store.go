// Package store persists measurement records in a file shared across
// concurrent processes.
package store

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/cmakeperf/cmakeperf/model"
)

// ErrContention is returned when the store lock could not be acquired within
// the retry budget. Callers must surface it; a record is never dropped
// silently.
var ErrContention = errors.New("result store is locked by another process")

// Store is a collection of Measurements in a single JSON file, keyed by the
// output file each command produces. Concurrent writers, typically many
// short-lived launcher processes spawned by a parallel build, serialize
// through an exclusive lock on a sidecar lock file.
type Store struct {
	path   string
	logger zerolog.Logger
}

// New creates a store backed by the given file path. The file is created on
// first Put.
func New(logger zerolog.Logger, path string) *Store {
	return &Store{
		path:   path,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Put inserts the measurement, replacing any existing record with the same
// key. The read-modify-write cycle runs under the exclusive lock, which is
// released on every exit path.
func (s *Store) Put(m *model.Measurement) error {
	unlock, err := s.lock(true)
	if err != nil {
		return err
	}
	defer unlock()

	records, err := s.read()
	if err != nil {
		return err
	}

	replaced := false
	for i := range records {
		if records[i].Key() == m.Key() {
			records[i] = *m
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, *m)
	}

	s.logger.Debug().
		Str("key", m.Key()).
		Bool("replaced", replaced).
		Int("records", len(records)).
		Msg("Storing measurement")

	return s.write(records)
}

// Load returns all records in insertion order, under a shared lock.
func (s *Store) Load() ([]model.Measurement, error) {
	unlock, err := s.lock(false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.read()
}

// read parses the backing file. A missing file is an empty store.
func (s *Store) read() ([]model.Measurement, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read result store: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []model.Measurement
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse result store %s: %w", s.path, err)
	}
	return records, nil
}

// write replaces the backing file atomically via temp file + rename, so a
// reader never observes a half-written store.
func (s *Store) write(records []model.Measurement) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result store: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp store file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write result store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp store file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace result store: %w", err)
	}
	return nil
}

// WriteCSV renders records in the original cmakeperf CSV layout:
// file,max_rss,time with bytes and seconds.
func WriteCSV(w io.Writer, records []model.Measurement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"file", "max_rss", "time"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i := range records {
		m := &records[i]
		row := []string{
			m.Key(),
			strconv.FormatUint(m.PeakRSS, 10),
			strconv.FormatFloat(m.Duration.Seconds(), 'f', 3, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
