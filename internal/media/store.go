package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"go-messenger/internal/logging"
)

// FileStore keeps uploaded files and maps them to public URLs.
type FileStore interface {
	Save(ctx context.Context, kind Kind, filename string, r io.Reader) (string, error)
	// Remove deletes the files behind urls. Failures are logged, not
	// returned: a leftover file never fails the request that orphaned it.
	Remove(ctx context.Context, urls ...string)
}

// DiskStore writes files under dir/<kind>s/ with random names and serves
// them under urlPrefix.
type DiskStore struct {
	dir       string
	urlPrefix string
}

func NewDiskStore(dir, urlPrefix string) (*DiskStore, error) {
	for _, k := range []Kind{KindImage, KindVideo, KindAudio, KindFile} {
		if err := os.MkdirAll(filepath.Join(dir, k.folder()), 0o755); err != nil {
			return nil, fmt.Errorf("create upload dir: %w", err)
		}
	}
	return &DiskStore{dir: dir, urlPrefix: strings.TrimSuffix(urlPrefix, "/")}, nil
}

// Dir is the root directory, for serving files read-only.
func (s *DiskStore) Dir() string { return s.dir }

func (s *DiskStore) Save(_ context.Context, kind Kind, filename string, r io.Reader) (string, error) {
	name := uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	full := filepath.Join(s.dir, kind.folder(), name)

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return path.Join(s.urlPrefix, kind.folder(), name), nil
}

func (s *DiskStore) Remove(_ context.Context, urls ...string) {
	for _, u := range urls {
		full, ok := s.localPath(u)
		if !ok {
			logging.Warn().Str("url", u).Msg("refusing to remove file outside upload dir")
			continue
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.Warn().Err(err).Str("url", u).Msg("remove upload failed")
		}
	}
}

// localPath maps a URL produced by Save back to a path inside dir. Only
// clean <kind folder>/<name> paths are accepted.
func (s *DiskStore) localPath(u string) (string, bool) {
	rel, ok := strings.CutPrefix(u, s.urlPrefix+"/")
	if !ok || rel == "" || strings.Contains(rel, "..") || path.Clean(rel) != rel {
		return "", false
	}
	folder, name, ok := strings.Cut(rel, "/")
	if !ok || name == "" || strings.Contains(name, "/") || !isKindFolder(folder) {
		return "", false
	}
	return filepath.Join(s.dir, folder, name), true
}

func isKindFolder(folder string) bool {
	for _, k := range []Kind{KindImage, KindVideo, KindAudio, KindFile} {
		if k.folder() == folder {
			return true
		}
	}
	return false
}
