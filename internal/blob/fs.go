package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FS stores payloads on the local filesystem as {root}/{runID}/{path}.
type FS struct {
	root string
}

var _ Store = (*FS)(nil)

// NewFS creates the root directory if needed and returns a filesystem store.
func NewFS(root string) (*FS, error) {
	if root == "" {
		return nil, fmt.Errorf("blob: empty filesystem root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("blob: resolve root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create root %q: %w", abs, err)
	}
	return &FS{root: abs}, nil
}

func (s *FS) Put(_ context.Context, runID uuid.UUID, path string, r io.Reader) (string, error) {
	dest, err := s.resolve(runID.String() + "/" + path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("blob: create artifact dir: %w", err)
	}

	// Write to a sibling temp file and rename so concurrent readers never
	// observe a partial payload.
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("blob: create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("blob: write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("blob: close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("blob: finalize artifact: %w", err)
	}

	return "file://" + filepath.ToSlash(dest), nil
}

func (s *FS) Get(_ context.Context, uri string) (io.ReadCloser, error) {
	raw, ok := strings.CutPrefix(uri, "file://")
	if !ok {
		return nil, fmt.Errorf("blob: not a file URI: %q", uri)
	}
	rel, err := filepath.Rel(s.root, filepath.FromSlash(raw))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("blob: URI %q escapes store root", uri)
	}

	f, err := os.Open(filepath.Join(s.root, rel))
	if err != nil {
		return nil, fmt.Errorf("blob: open artifact: %w", err)
	}
	return f, nil
}

// resolve joins rel under the root and rejects anything that escapes it.
func (s *FS) resolve(rel string) (string, error) {
	dest := filepath.Join(s.root, filepath.FromSlash(rel))
	if dest != s.root && !strings.HasPrefix(dest, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("blob: path %q escapes store root", rel)
	}
	return dest, nil
}
