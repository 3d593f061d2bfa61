package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	domainerrors "github.com/domainsearch/engine/pkg/errors"
)

const manifestFilename = "MANIFEST.json"
const manifestVersion = 1

// segmentInfo is one segment's manifest record: enough for a reader to
// open every live segment file and enough for the merge policy to decide
// what to merge next, without touching the segment files themselves.
type segmentInfo struct {
	ID        string `json:"id"`
	DocCount  int    `json:"doc_count"`
	TermCount int    `json:"term_count"`
	CreatedAt int64  `json:"created_at"`
}

type manifestData struct {
	Version    int           `json:"version"`
	Generation int64         `json:"generation"`
	Segments   []segmentInfo `json:"segments"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// manifest is the durable record of which segments make up the live index,
// committed atomically (write-temp-then-rename) after every flush and
// merge. Adapted from sha1n's Manifest (other_examples/gitrepos/manifest.go):
// same load-or-create and atomic-save shape, generalized from a per-repo
// sync-state map to a segment list plus a monotonically increasing
// generation counter that readers use to detect manifest changes.
type manifest struct {
	mu   sync.RWMutex
	path string
	data manifestData
}

func loadManifest(dataDir string) (*manifest, error) {
	path := filepath.Join(dataDir, manifestFilename)
	m := &manifest{path: path, data: manifestData{Version: manifestVersion}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if err := json.Unmarshal(raw, &m.data); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.data.Version != manifestVersion {
		return nil, fmt.Errorf("%w: manifest at %s has version %d, this build supports %d",
			domainerrors.ErrUnsupportedManifest, path, m.data.Version, manifestVersion)
	}
	return m, nil
}

// Save writes the manifest to a temp file and renames it into place, so a
// crash mid-write never leaves a partially-written manifest visible to a
// reader.
func (m *manifest) Save() error {
	m.mu.RLock()
	m.data.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(m.data, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("writing manifest temp file: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming manifest file: %w", err)
	}
	return nil
}

// Segments returns a copy of the current segment list, in the order they
// were recorded (oldest first).
func (m *manifest) Segments() []segmentInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]segmentInfo, len(m.data.Segments))
	copy(out, m.data.Segments)
	return out
}

// Generation returns the current commit generation.
func (m *manifest) Generation() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Generation
}

// CommitSegments replaces the segment list wholesale and bumps the
// generation counter. Callers hold the engine's write lock, so there is no
// concurrent writer to race with; readers only ever see this through
// Save()'s atomic rename.
func (m *manifest) CommitSegments(segments []segmentInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Segments = segments
	m.data.Generation++
}

// AppendSegment adds a newly flushed segment to the end of the list.
func (m *manifest) AppendSegment(info segmentInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Segments = append(m.data.Segments, info)
	m.data.Generation++
}

// BumpGeneration advances the generation counter without changing the
// segment list, so readers polling the manifest detect a change that
// touched only a tombstone sidecar rather than the segment set itself.
func (m *manifest) BumpGeneration() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Generation++
}
