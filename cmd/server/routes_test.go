package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"go-messenger/internal/auth"
	"go-messenger/internal/config"
	"go-messenger/internal/logging"
	"go-messenger/internal/media"
	"go-messenger/internal/middleware"
	"go-messenger/internal/realtime"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// newTestServer mounts the full middleware chain with only the realtime
// side wired; the REST handlers are never called.
func newTestServer(t *testing.T) (*httptest.Server, *auth.TokenService, *realtime.Registry) {
	t.Helper()
	tokens := auth.NewTokenService("test-secret", time.Hour)
	registry := realtime.NewRegistry()
	hub := realtime.NewHub(registry, realtime.NewRouter(registry, realtime.RouterConfig{}), realtime.HubConfig{})
	files, err := media.NewDiskStore(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatalf("NewDiskStore() error = %v", err)
	}
	cfg := &config.Config{
		Uploads:   config.UploadsConfig{URLPrefix: "/uploads"},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
		RateLimit: config.RateLimitConfig{Requests: 100, Window: time.Minute},
	}

	srv := httptest.NewServer(newRouter(routes{
		cfg:    cfg,
		authMW: middleware.NewAuthMiddleware(tokens),
		hub:    hub,
		files:  files,
	}))
	t.Cleanup(srv.Close)
	return srv, tokens, registry
}

func TestWebSocketRequiresToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("GET /ws: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=garbage"
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Error("dial with a bad token succeeded")
	} else if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", resp.StatusCode)
	}
}

func TestWebSocketJoinThroughRouter(t *testing.T) {
	srv, tokens, registry := newTestServer(t)
	token, err := tokens.Issue(7, auth.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + url.QueryEscape(token)
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(map[string]any{"event": "join_chat", "data": 5, "ref": "r1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Event string `json:"event"`
		Data  struct {
			Command string `json:"command"`
			Ref     string `json:"ref"`
			Data    struct {
				Room string `json:"room"`
			} `json:"data"`
		} `json:"data"`
	}
	if err := ws.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Event != realtime.EventAck || frame.Data.Command != "join_chat" || frame.Data.Ref != "r1" {
		t.Fatalf("frame = %+v, want ack for join_chat", frame)
	}
	if frame.Data.Data.Room != realtime.ChatRoom(5) {
		t.Errorf("joined room = %q", frame.Data.Data.Room)
	}
	if n := len(registry.Members(realtime.ChatRoom(5))); n != 1 {
		t.Errorf("room members = %d, want 1", n)
	}
}
