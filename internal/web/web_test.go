package web

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"go-messenger/internal/apperr"
	"go-messenger/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

type createGroup struct {
	GroupName string `json:"groupName" validate:"required"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind apperr.Kind
	}{
		{"valid", `{"groupName":"gophers"}`, ""},
		{"missing field", `{}`, apperr.KindValidation},
		{"malformed", `{"groupName":`, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var v createGroup
			err := Decode(httptest.NewRecorder(), req, &v)
			if tt.wantKind == "" {
				if err != nil {
					t.Fatalf("Decode() = %v", err)
				}
				if v.GroupName != "gophers" {
					t.Errorf("GroupName = %q", v.GroupName)
				}
				return
			}
			if apperr.KindOf(err) != tt.wantKind {
				t.Errorf("kind = %v, want %v", apperr.KindOf(err), tt.wantKind)
			}
		})
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantMsg    string
	}{
		{apperr.Forbidden("not a member"), http.StatusForbidden, "not a member"},
		{apperr.NotFound("group not found"), http.StatusNotFound, "group not found"},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "something went wrong"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
		if rec.Code != tt.wantStatus {
			t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
		}
		var body ErrorBody
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body.Error.Message != tt.wantMsg {
			t.Errorf("message = %q, want %q", body.Error.Message, tt.wantMsg)
		}
	}
}

func TestIDParam(t *testing.T) {
	r := chi.NewRouter()
	var got int64
	var gotErr error
	r.Get("/groups/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = IDParam(r, "id")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/groups/42", nil))
	if gotErr != nil || got != 42 {
		t.Errorf("IDParam = %d, %v", got, gotErr)
	}

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/groups/abc", nil))
	if apperr.KindOf(gotErr) != apperr.KindValidation {
		t.Errorf("expected validation error, got %v", gotErr)
	}
}

func TestPage(t *testing.T) {
	tests := []struct {
		query     string
		wantLimit int
		wantTime  bool
		wantErr   bool
	}{
		{"", 50, false, false},
		{"?limit=10", 10, false, false},
		{"?limit=0", 100, false, false},
		{"?limit=500", 100, false, false},
		{"?limit=-1", 0, false, true},
		{"?before=2024-05-01T10:00:00Z&limit=5", 5, true, false},
		{"?before=yesterday", 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/messages"+tt.query, nil)
			before, limit, err := Page(req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Page() err = %v", err)
			}
			if tt.wantErr {
				return
			}
			if limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", limit, tt.wantLimit)
			}
			if before.IsZero() == tt.wantTime {
				t.Errorf("before = %v", before)
			}
		})
	}
}
