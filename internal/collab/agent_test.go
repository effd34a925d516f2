package collab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatlogd/internal/capture"
	logx "chatlogd/pkg/logx"
)

func newTestAgent(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, time.Second, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	t.Parallel()
	if _, err := New("   ", 0, logx.Nop()); err == nil {
		t.Fatal("expected error for empty base url")
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	c := newTestAgent(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/targets/resolve" {
			t.Errorf("path = %q", r.URL.Path)
		}
		switch r.URL.Query().Get("ref") {
		case "0xbeef":
			_ = json.NewEncoder(w).Encode(targetDTO{TargetID: "0xcafe", Title: "friends"})
		default:
			http.NotFound(w, r)
		}
	}))

	got, err := c.Resolve(context.Background(), "0xbeef")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != (capture.Target{ID: "0xcafe", Title: "friends"}) {
		t.Fatalf("target = %+v", got)
	}

	if _, err := c.Resolve(context.Background(), "0xdead"); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("unmatched ref error = %v, want ErrNoMatch", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	c := newTestAgent(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/targets/live/valid":
			_ = json.NewEncoder(w).Encode(map[string]bool{"valid": true})
		case "/targets/gone/valid":
			_ = json.NewEncoder(w).Encode(map[string]bool{"valid": false})
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))

	ctx := context.Background()
	if !c.Validate(ctx, capture.Target{ID: "live"}) {
		t.Fatal("live target should validate")
	}
	if c.Validate(ctx, capture.Target{ID: "gone"}) {
		t.Fatal("gone target should not validate")
	}
	if c.Validate(ctx, capture.Target{ID: "error"}) {
		t.Fatal("agent error should count as invalid")
	}
}

func TestReadText(t *testing.T) {
	t.Parallel()
	c := newTestAgent(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		switch r.URL.Path {
		case "/targets/ok/read":
			_ = json.NewEncoder(w).Encode(map[string]any{"text": "hello"})
		case "/targets/null/read":
			_ = json.NewEncoder(w).Encode(map[string]any{"text": nil})
		default:
			http.Error(w, "boom", http.StatusBadGateway)
		}
	}))

	ctx := context.Background()
	text, err := c.ReadText(ctx, capture.Target{ID: "ok"})
	if err != nil || text == nil || *text != "hello" {
		t.Fatalf("ReadText = %v, %v", text, err)
	}

	// null text is a hard read failure, not an empty capture.
	text, err = c.ReadText(ctx, capture.Target{ID: "null"})
	if err != nil {
		t.Fatalf("ReadText(null): %v", err)
	}
	if text != nil {
		t.Fatalf("null text decoded as %q", *text)
	}

	if _, err := c.ReadText(ctx, capture.Target{ID: "down"}); err == nil {
		t.Fatal("expected error for non-200 read")
	}
}

func TestReopen(t *testing.T) {
	t.Parallel()
	c := newTestAgent(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chats/reopen" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req struct {
			Title string `json:"title"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(targetDTO{TargetID: "0x2", Title: req.Title})
	}))

	got, err := c.Reopen(context.Background(), "friends")
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if got != (capture.Target{ID: "0x2", Title: "friends"}) {
		t.Fatalf("target = %+v", got)
	}
}
