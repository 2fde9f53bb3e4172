package media

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"go-messenger/internal/logging"
	"go-messenger/internal/web"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestSetAttachments(t *testing.T) {
	s := Set{Images: []string{"/u/images/a.png"}, Files: []string{"/u/files/b.pdf", "/u/files/c.txt"}}
	if s.Empty() {
		t.Fatal("set should not be empty")
	}
	atts := s.Attachments()
	if len(atts) != 3 || atts[0].Kind != KindImage || atts[2].Kind != KindFile {
		t.Errorf("Attachments() = %+v", atts)
	}
	if !(Set{}).Empty() {
		t.Error("zero set should be empty")
	}
}

func TestOrphaned(t *testing.T) {
	before := []Attachment{{URL: "a"}, {URL: "b"}, {URL: "c"}}
	after := []Attachment{{URL: "b"}, {URL: "d"}}
	got := Orphaned(before, after)
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("Orphaned() = %v", got)
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"image", "VIDEO", "audio", "file"} {
		if _, ok := ParseKind(s); !ok {
			t.Errorf("ParseKind(%q) rejected", s)
		}
	}
	if _, ok := ParseKind("images"); ok {
		t.Error("plural kinds are not valid")
	}
}

func TestDiskStoreSaveRemove(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, "/uploads/")
	if err != nil {
		t.Fatalf("NewDiskStore() error = %v", err)
	}

	url, err := store.Save(context.Background(), KindImage, "Photo.PNG", bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !strings.HasPrefix(url, "/uploads/images/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("url = %q", url)
	}
	full := filepath.Join(dir, "images", filepath.Base(url))
	if _, err := os.Stat(full); err != nil {
		t.Fatalf("saved file missing: %v", err)
	}

	store.Remove(context.Background(), url, "/uploads/images/missing.png")
	if _, err := os.Stat(full); !os.IsNotExist(err) {
		t.Error("file should be removed")
	}
}

func TestDiskStoreRefusesEscapes(t *testing.T) {
	store, _ := NewDiskStore(t.TempDir(), "/uploads")
	for _, u := range []string{
		"/uploads/../../etc/passwd",
		"/elsewhere/images/a.png",
		"/uploads/images/../../x",
		"/uploads/",
		"/uploads/other/a.png",
		"/uploads/images/a/b.png",
		"/uploads/images//a.png",
		"/uploads/images/..",
		"/uploads/images/",
	} {
		if p, ok := store.localPath(u); ok {
			t.Errorf("localPath(%q) = %q, want rejection", u, p)
		}
	}
	if _, ok := store.localPath("/uploads/videos/clip.mp4"); !ok {
		t.Error("localPath should accept a saved-file URL")
	}
}

func uploadRequest(t *testing.T, kind, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", filename)
	fw.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/uploads/"+kind, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadHandler(t *testing.T) {
	store, _ := NewDiskStore(t.TempDir(), "/uploads")
	index := newMemIndex()
	r := chi.NewRouter()
	r.Use(asUser(7))
	r.Post("/api/uploads/{kind}", NewHandler(NewLibrary(index, store), 1<<20).Upload)

	tests := []struct {
		name       string
		kind       string
		content    []byte
		wantStatus int
	}{
		{"png as image", "image", pngHeader, http.StatusCreated},
		{"text as file", "file", []byte("hello"), http.StatusCreated},
		{"text as image", "image", []byte("hello"), http.StatusBadRequest},
		{"unknown kind", "sticker", pngHeader, http.StatusBadRequest},
		{"too large", "file", bytes.Repeat([]byte("x"), 2<<20), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, uploadRequest(t, tt.kind, "upload.bin", tt.content))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
			if rec.Code != http.StatusCreated {
				var body web.ErrorBody
				json.Unmarshal(rec.Body.Bytes(), &body)
				if body.Error.Kind != "validation_error" {
					t.Errorf("error kind = %q", body.Error.Kind)
				}
				return
			}
			var resp UploadResponse
			json.Unmarshal(rec.Body.Bytes(), &resp)
			if !strings.HasPrefix(resp.URL, "/uploads/"+tt.kind+"s/") {
				t.Errorf("url = %q", resp.URL)
			}
			if owner := index.owners[resp.URL]; owner != 7 {
				t.Errorf("upload owner = %d, want 7", owner)
			}
		})
	}
}

func TestUploadMissingField(t *testing.T) {
	store, _ := NewDiskStore(t.TempDir(), "/uploads")
	r := chi.NewRouter()
	r.Post("/api/uploads/{kind}", NewHandler(NewLibrary(newMemIndex(), store), 1<<20).Upload)

	req := httptest.NewRequest(http.MethodPost, "/api/uploads/file", strings.NewReader("nope"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}
