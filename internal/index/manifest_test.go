package index

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	domainerrors "github.com/domainsearch/engine/pkg/errors"
)

func TestLoadManifestRefusesUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, manifestFilename)
	raw := `{"version":99,"generation":1,"segments":[],"updated_at":"2024-01-01T00:00:00Z"}`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}

	if _, err := loadManifest(dir); err == nil {
		t.Fatalf("expected loadManifest to refuse an unrecognized version")
	} else if !errors.Is(err, domainerrors.ErrUnsupportedManifest) {
		t.Fatalf("expected ErrUnsupportedManifest, got %v", err)
	}
}

func TestLoadManifestAcceptsMissingFileAsFresh(t *testing.T) {
	dir := t.TempDir()
	m, err := loadManifest(dir)
	if err != nil {
		t.Fatalf("loading fresh manifest failed: %v", err)
	}
	if m.Generation() != 0 || len(m.Segments()) != 0 {
		t.Fatalf("expected empty fresh manifest, got generation=%d segments=%d", m.Generation(), len(m.Segments()))
	}
}
