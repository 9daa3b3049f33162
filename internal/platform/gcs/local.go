package gcs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/inkmark/inkmark-backend/internal/logger"
	"github.com/inkmark/inkmark-backend/internal/utils"
)

// localBucketService implements BucketService on the local filesystem for
// development and tests. Keys map directly to paths under the root; the
// public URL is <base>/<key> and the server exposes the root as a static
// route at that base.
type localBucketService struct {
	log           *logger.Logger
	root          string
	publicBaseURL string
}

func newLocalBucketService(serviceLog *logger.Logger, storageCfg ObjectStorageConfig) (BucketService, error) {
	root := storageCfg.LocalRoot
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create local storage root %s: %w", root, err)
	}

	publicBaseURL := strings.TrimRight(
		utils.GetEnv("OBJECT_STORAGE_PUBLIC_BASE_URL", "http://localhost:8080/files", nil),
		"/",
	)

	serviceLog.Info(
		"Object storage initialized",
		"mode", storageCfg.Mode,
		"mode_source", storageCfg.ModeSource(),
		"local_root", root,
		"public_base_url", publicBaseURL,
	)

	return &localBucketService{
		log:           serviceLog,
		root:          root,
		publicBaseURL: publicBaseURL,
	}, nil
}

func (ls *localBucketService) pathFor(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("empty storage key")
	}
	return filepath.Join(ls.root, clean), nil
}

func (ls *localBucketService) UploadFile(ctx context.Context, key string, file io.Reader) error {
	path, err := ls.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for key %q: %w", key, err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create local object %q: %w", key, err)
	}
	if _, err := io.Copy(out, file); err != nil {
		_ = out.Close()
		return fmt.Errorf("write local object %q: %w", key, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close local object %q: %w", key, err)
	}
	return nil
}

func (ls *localBucketService) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := ls.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open local object %q: %w", key, err)
	}
	return f, nil
}

func (ls *localBucketService) DeleteFile(ctx context.Context, key string) error {
	path, err := ls.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete local object %q: %w", key, err)
	}
	return nil
}

func (ls *localBucketService) DeletePrefix(ctx context.Context, prefix string) error {
	path, err := ls.pathFor(prefix)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("delete local prefix %q: %w", prefix, err)
	}
	return nil
}

func (ls *localBucketService) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(ls.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(ls.root, path)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list local objects with prefix %q: %w", prefix, err)
	}
	return keys, nil
}

func (ls *localBucketService) GetPublicURL(key string) string {
	return ls.publicBaseURL + "/" + key
}

// LocalRootOf exposes the backing directory when the service is local-mode,
// so the router can mount it as a static file route.
func LocalRootOf(bs BucketService) (string, bool) {
	if ls, ok := bs.(*localBucketService); ok {
		return ls.root, true
	}
	return "", false
}
