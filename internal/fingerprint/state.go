package fingerprint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const stateVersion = 1

// EndpointState is the last-generation record for one fingerprint.
type EndpointState struct {
	Fingerprint      string    `json:"fingerprint"`
	GeneratedAt      time.Time `json:"generated_at"`
	Provider         string    `json:"provider"`
	FallbackFrom     string    `json:"fallback_from,omitempty"`
	Model            string    `json:"model"`
	TestCount        int       `json:"test_count"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	RetryCount       int       `json:"retry_count"`
	ArtifactPath     string    `json:"artifact_path"`
}

// Counters aggregates run-wide totals alongside the per-endpoint map.
type Counters struct {
	TotalRuns      int `json:"total_runs"`
	TotalGenerated int `json:"total_generated"`
	TotalSkipped   int `json:"total_skipped"`
	TotalFailed    int `json:"total_failed"`
}

// fileFormat is the on-disk shape of the state file: version-tagged so a
// future incompatible layout can be detected and discarded rather than
// misread.
type fileFormat struct {
	Version   int                      `json:"version"`
	Endpoints map[string]EndpointState `json:"endpoints"`
	Counters  Counters                 `json:"counters"`
}

// Store is the in-memory, mutex-serialized state-file handle described in
// spec.md §4.2: opened once at start, rewritten atomically after each
// successful endpoint.
type Store struct {
	path string
	log  *zap.Logger

	mu        sync.Mutex
	endpoints map[string]EndpointState
	counters  Counters
}

// Open loads path if it exists, tolerating a missing or corrupt file by
// starting from empty state (never fatal), per spec.md §4.2.
func Open(path string, log *zap.Logger) *Store {
	s := &Store{path: path, log: log, endpoints: map[string]EndpointState{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) && log != nil {
			log.Warn("state file unreadable, starting empty", zap.String("path", path), zap.Error(err))
		}
		return s
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		if log != nil {
			log.Warn("state file corrupt, starting empty", zap.String("path", path), zap.Error(err))
		}
		return s
	}
	if ff.Version != stateVersion {
		if log != nil {
			log.Warn("state file has unknown version, rebuilding", zap.String("path", path), zap.Int("version", ff.Version))
		}
		return s
	}

	s.endpoints = ff.Endpoints
	if s.endpoints == nil {
		s.endpoints = map[string]EndpointState{}
	}
	s.counters = ff.Counters
	return s
}

// Lookup returns the state recorded for key ("METHOD path"), if any.
func (s *Store) Lookup(key string) (EndpointState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.endpoints[key]
	return st, ok
}

// ShouldSkip reports whether key's existing state already matches
// fingerprint and should be skipped without a provider call (the
// incremental-regeneration invariant from spec.md §8), unless force is set.
func (s *Store) ShouldSkip(key, fingerprint string, force bool) bool {
	if force {
		return false
	}
	st, ok := s.Lookup(key)
	return ok && st.Fingerprint == fingerprint
}

// Record updates key's state and atomically rewrites the state file. Called
// only after a job's artifact has been successfully validated and written.
func (s *Store) Record(key string, st EndpointState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endpoints[key] = st
	s.counters.TotalGenerated++
	return s.writeLocked()
}

// RecordSkip increments the skip counter without touching the endpoint map.
func (s *Store) RecordSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.TotalSkipped++
}

// RecordFailure increments the failure counter and rewrites the file so a
// crash mid-run does not lose the tally.
func (s *Store) RecordFailure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.TotalFailed++
	return s.writeLocked()
}

// Snapshot returns a copy of the aggregate counters block.
func (s *Store) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// writeLocked serializes the current state to a temp file in the same
// directory, then renames it over path — the only atomic-on-POSIX update
// path, per spec.md §4.2's write-temp-then-rename requirement. Caller must
// hold s.mu.
func (s *Store) writeLocked() error {
	ff := fileFormat{Version: stateVersion, Endpoints: s.endpoints, Counters: s.counters}
	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".casecraft-state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename temp state file: %w", err)
	}
	return nil
}
