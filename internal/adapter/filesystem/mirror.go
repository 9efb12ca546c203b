// Package filesystem implements the local mirror: the destination tree
// treated as the authoritative record of what has already been fetched.
package filesystem

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalMirror answers existence/size questions against the destination tree
// and performs collision-safe atomic writes. It keeps no state between calls;
// every answer is recomputed from current directory contents, so interrupted
// runs can simply be re-run.
type LocalMirror struct{}

func NewLocalMirror() *LocalMirror {
	return &LocalMirror{}
}

// variantName returns the nth disambiguated name for base: "base (n)".
func variantName(base string, n int) string {
	return fmt.Sprintf("%s (%d)", base, n)
}

// ExistingSizes returns the byte sizes of base and all contiguous
// disambiguated variants present in dir. Variants are probed in counter order,
// matching how NextAvailableName assigns them, and independently of the base:
// a deleted base copy must not hide its surviving variants.
func (m *LocalMirror) ExistingSizes(dir, base string) []int64 {
	var sizes []int64

	if info, err := os.Stat(filepath.Join(dir, base)); err == nil {
		sizes = append(sizes, info.Size())
	}

	for n := 1; ; n++ {
		info, err := os.Stat(filepath.Join(dir, variantName(base, n)))
		if err != nil {
			break
		}
		sizes = append(sizes, info.Size())
	}
	return sizes
}

// NextAvailableName returns the full destination path for base in dir,
// appending " (1)", " (2)", ... until an unoccupied name is found.
func (m *LocalMirror) NextAvailableName(dir, base string) string {
	candidate := filepath.Join(dir, base)
	if _, err := os.Stat(candidate); err != nil {
		return candidate
	}
	for n := 1; ; n++ {
		candidate = filepath.Join(dir, variantName(base, n))
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

func (m *LocalMirror) EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// WriteFile streams r into path: the bytes go to a temporary ".part" name in
// the same directory and are renamed into place only after a complete write,
// so a crash or cancellation mid-transfer never leaves a file that looks
// complete but isn't.
func (m *LocalMirror) WriteFile(path string, r io.Reader) (int64, error) {
	if err := m.EnsureDir(filepath.Dir(path)); err != nil {
		return 0, err
	}

	tmp := fmt.Sprintf("%s.%s.part", path, uuid.NewString()[:8])
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return written, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return written, err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return written, err
	}
	return written, nil
}
