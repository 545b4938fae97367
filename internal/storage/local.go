package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/facerecog/internal/imagetype"
)

// Slot identifies which of the two image positions a file fills. Its value
// doubles as the stored filename prefix.
type Slot string

const (
	SlotProfile Slot = "profile"
	SlotLive    Slot = "live"
)

const maxCreateAttempts = 4

// StoredImage describes a file written by LocalStore.
type StoredImage struct {
	Path string
	Size int64
}

// LocalStore writes uploaded images into one directory per slot.
type LocalStore struct {
	dirs   map[Slot]string
	now    func() time.Time
	logger *zap.Logger
}

// NewLocalStore creates a store rooted at the given slot directories.
// Directories are not created until EnsureDirectories is called.
func NewLocalStore(profileDir, liveDir string, logger *zap.Logger) *LocalStore {
	return &LocalStore{
		dirs: map[Slot]string{
			SlotProfile: profileDir,
			SlotLive:    liveDir,
		},
		now:    time.Now,
		logger: logger.Named("storage"),
	}
}

// Dir returns the directory backing a slot.
func (s *LocalStore) Dir(slot Slot) string {
	return s.dirs[slot]
}

// EnsureDirectories creates the slot directories if they are missing.
// Safe to call concurrently and repeatedly.
func (s *LocalStore) EnsureDirectories() error {
	for _, slot := range []Slot{SlotProfile, SlotLive} {
		if err := os.MkdirAll(s.dirs[slot], 0o755); err != nil {
			return fmt.Errorf("create %s directory: %w", slot, err)
		}
	}
	return nil
}

// Save writes src into the slot directory as {slot}-{unixMillis}{ext} and
// returns the absolute path. The extension comes from the sanitized client
// filename. An existing file is never overwritten: on a name clash a short
// random suffix is appended instead.
func (s *LocalStore) Save(ctx context.Context, slot Slot, filename string, src io.Reader) (*StoredImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, ok := s.dirs[slot]
	if !ok {
		return nil, fmt.Errorf("unknown slot %q", slot)
	}

	ext := imagetype.StoredExtension(filename)
	millis := s.now().UnixMilli()

	file, path, err := s.create(dir, slot, millis, ext)
	if err != nil {
		return nil, err
	}

	written, err := io.Copy(file, src)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("image stored",
		zap.String("slot", string(slot)),
		zap.String("path", abs),
		zap.Int64("size", written))

	return &StoredImage{Path: abs, Size: written}, nil
}

func (s *LocalStore) create(dir string, slot Slot, millis int64, ext string) (*os.File, string, error) {
	name := fmt.Sprintf("%s-%d%s", slot, millis, ext)
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		if attempt > 0 {
			name = fmt.Sprintf("%s-%d-%s%s", slot, millis, uuid.NewString()[:8], ext)
		}
		path := filepath.Join(dir, name)
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return file, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", err
		}
		s.logger.Warn("stored name already taken", zap.String("name", name))
	}
	return nil, "", fmt.Errorf("could not allocate a unique name for %s upload", slot)
}
