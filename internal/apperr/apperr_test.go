package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("bad"), KindValidation},
		{"wrapped forbidden", fmt.Errorf("edit: %w", Forbidden("not allowed")), KindAuthorization},
		{"foreign error", errors.New("boom"), KindPersistence},
		{"persistence", Persistence("insert", sql.ErrConnDone), KindPersistence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsMatchesOnKind(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NotFound("message not found"))
	if !errors.Is(err, NotFound("")) {
		t.Error("expected errors.Is to match on kind")
	}
	if errors.Is(err, Forbidden("")) {
		t.Error("different kinds must not match")
	}
}

func TestPersistenceHidesCause(t *testing.T) {
	err := Persistence("insert message", errors.New("connection refused"))
	if got := PublicMessage(err); got != "something went wrong" {
		t.Errorf("PublicMessage() = %q", got)
	}
	if !errors.Is(err, err.Err) {
		t.Error("cause should stay reachable through Unwrap")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:    http.StatusBadRequest,
		KindAuthorization: http.StatusForbidden,
		KindNotFound:      http.StatusNotFound,
		KindConflict:      http.StatusConflict,
		KindCredential:    http.StatusUnauthorized,
		KindPersistence:   http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", kind, got, want)
		}
	}
}
