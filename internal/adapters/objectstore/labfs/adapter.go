// Package labfs implements backend.ObjectStore over the local filesystem.
// It exists solely for lab mode (spec §4.3: "filesystem is permitted" only
// when mode=lab); the backend-class guard in internal/backend rejects this
// adapter's backend_type outright in saas/enterprise.
package labfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
)

// Adapter implements backend.ObjectStore by writing keys as files under
// root, with '/' in a key mapped to nested directories.
type Adapter struct {
	root string
}

// New builds an Adapter rooted at root, creating it if absent.
func New(root string) (*Adapter, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Adapter{root: root}, nil
}

func (a *Adapter) path(key string) string {
	return filepath.Join(a.root, filepath.FromSlash(key))
}

func (a *Adapter) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	path := a.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.BackendUnavailable("object_store", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return errs.BackendUnavailable("object_store", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, data); err != nil {
		return errs.BackendUnavailable("object_store", err)
	}
	return nil
}

func (a *Adapter) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(a.path(key))
	if os.IsNotExist(err) {
		return nil, errs.NotFound("object_store", key)
	}
	if err != nil {
		return nil, errs.BackendUnavailable("object_store", err)
	}
	return f, nil
}

func (a *Adapter) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(a.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errs.BackendUnavailable("object_store", err)
	}
	return true, nil
}

func (a *Adapter) List(ctx context.Context, prefix, cursor string) ([]string, string, error) {
	var keys []string
	err := filepath.WalkDir(a.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(a.root, path)
		if err != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, "", errs.BackendUnavailable("object_store", err)
	}
	sort.Strings(keys)
	return keys, "", nil
}

func (a *Adapter) Delete(ctx context.Context, key string) error {
	err := os.Remove(a.path(key))
	if err != nil && !os.IsNotExist(err) {
		return errs.BackendUnavailable("object_store", err)
	}
	return nil
}
