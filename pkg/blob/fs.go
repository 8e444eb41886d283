package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"maturity-hq/steward/pkg/governance"
)

// FSSink stores artifacts under a root directory. Writes go to a temporary
// file that is renamed into place, so readers never see a partial artifact.
type FSSink struct {
	root   string
	logger *slog.Logger
}

// NewFSSink creates a filesystem sink rooted at root, creating it if needed.
func NewFSSink(root string) (*FSSink, error) {
	if root == "" {
		return nil, errors.New("blob root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &FSSink{
		root:   root,
		logger: slog.Default().With("component", "blob.fs"),
	}, nil
}

// Root returns the sink directory.
func (s *FSSink) Root() string {
	return s.root
}

// Put writes data to p and returns its reference.
func (s *FSSink) Put(ctx context.Context, p string, data []byte) (governance.ArtifactRef, error) {
	key, err := cleanKey(p)
	if err != nil {
		return governance.ArtifactRef{}, governance.NewValidationError("path", err.Error())
	}
	if err := ctx.Err(); err != nil {
		return governance.ArtifactRef{}, err
	}

	full := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return governance.ArtifactRef{}, governance.NewTransientStoreError("blob", "mkdir", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		return governance.ArtifactRef{}, governance.NewTransientStoreError("blob", "create", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return governance.ArtifactRef{}, governance.NewTransientStoreError("blob", "write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return governance.ArtifactRef{}, governance.NewTransientStoreError("blob", "sync", err)
	}
	if err := tmp.Close(); err != nil {
		return governance.ArtifactRef{}, governance.NewTransientStoreError("blob", "close", err)
	}
	if err := os.Chmod(tmpName, 0o640); err != nil {
		return governance.ArtifactRef{}, governance.NewTransientStoreError("blob", "chmod", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		return governance.ArtifactRef{}, governance.NewTransientStoreError("blob", "rename", err)
	}

	return governance.ArtifactRef{
		Location: key,
		Size:     int64(len(data)),
		Checksum: Checksum(data),
	}, nil
}

// Get reads an artifact.
func (s *FSSink) Get(ctx context.Context, p string) ([]byte, error) {
	key, err := cleanKey(p)
	if err != nil {
		return nil, governance.NewValidationError("path", err.Error())
	}
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("artifact %s: %w", key, governance.ErrNotFound)
	}
	return data, err
}

// Delete removes an artifact. Deleting a missing artifact is not an error.
func (s *FSSink) Delete(ctx context.Context, ref governance.ArtifactRef) error {
	key, err := cleanKey(ref.Location)
	if err != nil {
		return governance.NewValidationError("location", err.Error())
	}
	err = os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return governance.NewTransientStoreError("blob", "delete", err)
	}
	return nil
}

type fileAge struct {
	path    string
	modTime time.Time
}

// DeleteExpired removes up to limit artifacts last written at or before
// cutoff. It backs the export_artifacts retention category.
func (s *FSSink) DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	var expired []fileAge
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.ModTime().After(cutoff) {
			expired = append(expired, fileAge{path: p, modTime: info.ModTime()})
		}
		return ctx.Err()
	})
	if err != nil {
		return 0, governance.NewTransientStoreError("blob", "scan", err)
	}

	slices.SortFunc(expired, func(a, b fileAge) int { return a.modTime.Compare(b.modTime) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	var n int64
	for _, f := range expired {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return n, governance.NewTransientStoreError("blob", "delete_expired", err)
		}
		n++
	}
	if n > 0 {
		s.logger.Info("expired artifacts removed", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
