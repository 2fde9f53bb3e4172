package channel

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"go-messenger/internal/auth"
	"go-messenger/internal/web"
)

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := strconv.ParseInt(r.Header.Get("X-User"), 10, 64)
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{ID: id, Role: auth.RoleUser})))
		})
	})
	r.Route("/api/channels/{channelID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/contents", h.Post)
		r.Get("/contents", h.Contents)
	})
	return r
}

func do(t *testing.T, srv http.Handler, method, path string, user int64, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-User", strconv.FormatInt(user, 10))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHandlerPostAndList(t *testing.T) {
	f := newFixture(t)
	srv := newTestRouter(NewHandler(f.svc))
	base := "/api/channels/" + strconv.FormatInt(f.channel.ID, 10)

	rec := do(t, srv, http.MethodPost, base+"/contents", editor, `{"contents":["hello followers"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("post status = %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, srv, http.MethodPost, base+"/contents", follower, `{"contents":["me too"]}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("follower post status = %d", rec.Code)
	}
	var errBody web.ErrorBody
	json.Unmarshal(rec.Body.Bytes(), &errBody)
	if errBody.Error.Kind != "authorization_error" {
		t.Errorf("error kind = %q", errBody.Error.Kind)
	}

	rec = do(t, srv, http.MethodGet, base+"/contents?limit=10", follower, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d: %s", rec.Code, rec.Body)
	}
	var list struct {
		Data []Content `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list.Data) != 1 || list.Data[0].Content != "hello followers" {
		t.Fatalf("contents = %+v", list.Data)
	}

	rec = do(t, srv, http.MethodGet, base+"/contents?limit=abc", follower, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rec.Code)
	}
}

func TestHandlerGetViews(t *testing.T) {
	f := newFixture(t)
	srv := newTestRouter(NewHandler(f.svc))
	path := "/api/channels/" + strconv.FormatInt(f.channel.ID, 10) + "/"

	rec := do(t, srv, http.MethodGet, path, owner, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"followers"`) {
		t.Fatalf("owner view = %d %s", rec.Code, rec.Body)
	}
	rec = do(t, srv, http.MethodGet, path, stranger, "")
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), `"followers"`) {
		t.Fatalf("stranger view = %d %s", rec.Code, rec.Body)
	}
	rec = do(t, srv, http.MethodGet, "/api/channels/999/", owner, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing channel status = %d", rec.Code)
	}
}
