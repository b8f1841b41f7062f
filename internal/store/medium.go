package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Medium is a single-slot key-value persistence boundary. Read returns the
// stored value for the key, false on a clean miss, or an error when the
// medium itself failed. Write overwrites unconditionally.
type Medium interface {
	Name() string
	Read(key string) ([]byte, bool, error)
	Write(key string, value []byte) error
}

// ErrValueTooLarge is returned by size-limited media when a value exceeds
// their capacity. Callers treat it like any other storage failure.
var ErrValueTooLarge = errors.New("value exceeds medium capacity")

// FileMedium persists values as files under a directory. This is the primary,
// larger-capacity medium.
type FileMedium struct {
	dir string
}

// NewFileMedium creates the directory if needed and returns the medium.
func NewFileMedium(dir string) (*FileMedium, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileMedium{dir: dir}, nil
}

func (m *FileMedium) Name() string { return "file" }

func (m *FileMedium) path(key string) string {
	return filepath.Join(m.dir, key+".json")
}

func (m *FileMedium) Read(key string) ([]byte, bool, error) {
	raw, err := os.ReadFile(m.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", m.path(key), err)
	}
	return raw, true, nil
}

func (m *FileMedium) Write(key string, value []byte) error {
	tmp := m.path(key) + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, m.path(key)); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// CookieMedium is the small secondary fallback: a single one-line text file
// with a hard size cap, holding a duplicate of the primary's value. Values
// over the cap are rejected rather than truncated.
type CookieMedium struct {
	path    string
	maxSize int
}

// DefaultCookieCapacity mirrors the 4KB ceiling of a browser cookie.
const DefaultCookieCapacity = 4096

// NewCookieMedium returns a CookieMedium backed by the given file. maxSize
// uses DefaultCookieCapacity when zero.
func NewCookieMedium(path string, maxSize int) *CookieMedium {
	if maxSize <= 0 {
		maxSize = DefaultCookieCapacity
	}
	return &CookieMedium{path: path, maxSize: maxSize}
}

func (m *CookieMedium) Name() string { return "cookie" }

func (m *CookieMedium) Read(key string) ([]byte, bool, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", m.path, err)
	}
	line := strings.TrimSpace(string(raw))
	prefix := key + "="
	if !strings.HasPrefix(line, prefix) {
		return nil, false, nil
	}
	return []byte(strings.TrimPrefix(line, prefix)), true, nil
}

func (m *CookieMedium) Write(key string, value []byte) error {
	line := key + "=" + string(value) + "\n"
	if len(line) > m.maxSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrValueTooLarge, len(line), m.maxSize)
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cookie dir: %w", err)
		}
	}
	if err := os.WriteFile(m.path, []byte(line), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", m.path, err)
	}
	return nil
}
