package media

import (
	"context"
	"io"
	"slices"

	"go-messenger/internal/apperr"
	"go-messenger/internal/logging"
)

// Files is what the feature services need from uploads: checking that a
// user may attach a URL, and dropping files once nothing points at them.
type Files interface {
	// Claim fails with an authorization error unless ownerID uploaded
	// every non-empty url.
	Claim(ctx context.Context, ownerID int64, urls ...string) error
	// Release removes the files behind urls that no message or profile
	// references any more. Failures are logged.
	Release(ctx context.Context, urls ...string)
}

// UploadIndex records who uploaded each stored file.
type UploadIndex interface {
	Record(ctx context.Context, url string, ownerID int64, kind Kind) error
	Owners(ctx context.Context, urls []string) (map[string]int64, error)
	// Unreferenced returns the urls no media row or profile picture uses.
	Unreferenced(ctx context.Context, urls []string) ([]string, error)
	Forget(ctx context.Context, urls []string) error
}

// Library ties stored files to the users who uploaded them.
type Library struct {
	index UploadIndex
	store FileStore
}

func NewLibrary(index UploadIndex, store FileStore) *Library {
	return &Library{index: index, store: store}
}

// Upload stores a file and records ownerID as its uploader.
func (l *Library) Upload(ctx context.Context, ownerID int64, kind Kind, filename string, r io.Reader) (string, error) {
	url, err := l.store.Save(ctx, kind, filename, r)
	if err != nil {
		return "", apperr.Persistence("save upload", err)
	}
	if err := l.index.Record(ctx, url, ownerID, kind); err != nil {
		l.store.Remove(ctx, url)
		return "", err
	}
	return url, nil
}

func (l *Library) Claim(ctx context.Context, ownerID int64, urls ...string) error {
	urls = distinct(urls)
	if len(urls) == 0 {
		return nil
	}
	owners, err := l.index.Owners(ctx, urls)
	if err != nil {
		return err
	}
	for _, u := range urls {
		if id, ok := owners[u]; !ok || id != ownerID {
			return apperr.Forbidden("attachment " + u + " is not one of your uploads")
		}
	}
	return nil
}

func (l *Library) Release(ctx context.Context, urls ...string) {
	urls = distinct(urls)
	if len(urls) == 0 {
		return
	}
	unused, err := l.index.Unreferenced(ctx, urls)
	if err != nil {
		logging.Warn().Err(err).Strs("urls", urls).Msg("upload reference check failed")
		return
	}
	if len(unused) == 0 {
		return
	}
	l.store.Remove(ctx, unused...)
	if err := l.index.Forget(ctx, unused); err != nil {
		logging.Warn().Err(err).Strs("urls", unused).Msg("forget uploads failed")
	}
}

// distinct drops empty and repeated urls, keeping order.
func distinct(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u != "" && !slices.Contains(out, u) {
			out = append(out, u)
		}
	}
	return out
}
