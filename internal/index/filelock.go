package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	domainerrors "github.com/domainsearch/engine/pkg/errors"
)

// writerLockFile is the name of the exclusive lock file a writer process
// holds for the lifetime of an Engine, enforcing the single-writer
// invariant from spec.md §6 ("at most one writer process may hold the
// index open at a time").
const writerLockFile = "WRITER.LOCK"

// fileLock provides exclusive, non-blocking locking via flock(2), adapted
// from sha1n's FileLock (other_examples) to the writer's try-once contract:
// the index writer never waits for a competing writer, it fails fast.
type fileLock struct {
	path string
	file *os.File
}

func newFileLock(dataDir string) *fileLock {
	return &fileLock{path: filepath.Join(dataDir, writerLockFile)}
}

// TryLock attempts to acquire the exclusive lock without blocking. It
// returns ErrWriterLocked (not a generic error) if another process already
// holds it, per spec.md §7's requirement that lock contention be a
// distinguishable, non-fatal-to-the-caller error kind.
func (l *fileLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("opening writer lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return domainerrors.ErrWriterLocked
		}
		return fmt.Errorf("flock failed: %w", err)
	}
	l.file = f
	return nil
}

// Unlock releases the lock. Safe to call on an unlocked fileLock.
func (l *fileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	return closeErr
}
