package media

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"go-messenger/internal/apperr"
	"go-messenger/internal/auth"
)

// memIndex is an UploadIndex backed by maps. refs marks URLs still used by
// a message or profile.
type memIndex struct {
	owners map[string]int64
	refs   map[string]bool
}

func newMemIndex() *memIndex {
	return &memIndex{owners: map[string]int64{}, refs: map[string]bool{}}
}

func (m *memIndex) Record(_ context.Context, url string, ownerID int64, _ Kind) error {
	m.owners[url] = ownerID
	return nil
}

func (m *memIndex) Owners(_ context.Context, urls []string) (map[string]int64, error) {
	out := map[string]int64{}
	for _, u := range urls {
		if id, ok := m.owners[u]; ok {
			out[u] = id
		}
	}
	return out, nil
}

func (m *memIndex) Unreferenced(_ context.Context, urls []string) ([]string, error) {
	var out []string
	for _, u := range urls {
		if !m.refs[u] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memIndex) Forget(_ context.Context, urls []string) error {
	for _, u := range urls {
		delete(m.owners, u)
	}
	return nil
}

func asUser(id int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{ID: id, Role: auth.RoleUser})))
		})
	}
}

func newLibrary(t *testing.T) (*Library, *memIndex, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewDiskStore(dir, "/uploads")
	if err != nil {
		t.Fatalf("NewDiskStore() error = %v", err)
	}
	index := newMemIndex()
	return NewLibrary(index, store), index, dir
}

func exists(t *testing.T, dir, url string) bool {
	t.Helper()
	_, err := os.Stat(filepath.Join(dir, "images", filepath.Base(url)))
	return err == nil
}

func TestLibraryClaimRequiresUploader(t *testing.T) {
	lib, _, _ := newLibrary(t)
	ctx := context.Background()

	mine, err := lib.Upload(ctx, 1, KindImage, "a.png", bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	theirs, _ := lib.Upload(ctx, 2, KindImage, "b.png", bytes.NewReader(pngHeader))

	if err := lib.Claim(ctx, 1, mine, "", mine); err != nil {
		t.Errorf("Claim(own upload) error = %v", err)
	}
	tests := map[string][]string{
		"another user's upload": {mine, theirs},
		"never uploaded":        {"/uploads/images/unknown.png"},
		"outside the store":     {"https://elsewhere.example/x.png"},
	}
	for name, urls := range tests {
		if err := lib.Claim(ctx, 1, urls...); apperr.KindOf(err) != apperr.KindAuthorization {
			t.Errorf("%s: Claim() error = %v, want authorization error", name, err)
		}
	}
}

func TestLibraryReleaseKeepsReferencedFiles(t *testing.T) {
	lib, index, dir := newLibrary(t)
	ctx := context.Background()

	shared, _ := lib.Upload(ctx, 1, KindImage, "shared.png", bytes.NewReader(pngHeader))
	dropped, _ := lib.Upload(ctx, 1, KindImage, "dropped.png", bytes.NewReader(pngHeader))
	index.refs[shared] = true

	lib.Release(ctx, shared, dropped)

	if !exists(t, dir, shared) {
		t.Error("a file still referenced elsewhere was removed")
	}
	if _, ok := index.owners[shared]; !ok {
		t.Error("a referenced upload was forgotten")
	}
	if exists(t, dir, dropped) {
		t.Error("an unreferenced file was kept")
	}
	if _, ok := index.owners[dropped]; ok {
		t.Error("a removed upload is still indexed")
	}
}
