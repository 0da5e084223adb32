package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"drawsync/core"
)

// mimeSuffix marks the sidecar file that records an object's content type;
// the blob itself is stored verbatim under its key.
const mimeSuffix = ".mime"

type assetStore struct {
	basePath string
}

// NewStore creates a filesystem-backed asset store rooted at basePath. The
// root is created if it does not exist.
func NewStore(basePath string) *assetStore {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		logrus.Fatalf("failed to create asset directory %s: %v", basePath, err)
	}
	return &assetStore{basePath: basePath}
}

func (s *assetStore) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *assetStore) Put(ctx context.Context, key string, data []byte, mimeType string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logrus.WithFields(logrus.Fields{
			"key":   key,
			"error": err,
		}).Error("Failed to create asset directory")
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		logrus.WithFields(logrus.Fields{
			"key":   key,
			"error": err,
		}).Error("Failed to write asset")
		return err
	}
	return os.WriteFile(path+mimeSuffix, []byte(mimeType), 0644)
}

func (s *assetStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", core.ErrAssetNotFound
		}
		logrus.WithFields(logrus.Fields{
			"key":   key,
			"error": err,
		}).Error("Failed to read asset")
		return nil, "", err
	}

	// A missing sidecar is tolerated; callers fall back to the recorded
	// content type.
	mimeType, _ := os.ReadFile(path + mimeSuffix)
	return data, string(mimeType), nil
}

func (s *assetStore) URL(key string) string {
	return "file://" + filepath.Join(s.basePath, filepath.FromSlash(key))
}

// resolve maps a storage key onto a path under the root and rejects keys that
// would escape it.
func (s *assetStore) resolve(key string) (string, error) {
	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(filepath.Join(s.basePath, filepath.FromSlash(key)))
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid asset key %q: access denied", key)
	}
	return absPath, nil
}
