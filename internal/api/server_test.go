package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chatlogd/internal/parse"
	"chatlogd/internal/store"
	logx "chatlogd/pkg/logx"
)

type fakeAdmitter struct {
	lastRef  string
	lastCode int
	admitted bool
	err      error
}

func (a *fakeAdmitter) AdmitSignal(_ context.Context, ref string, code int) (bool, error) {
	a.lastRef, a.lastCode = ref, code
	return a.admitted, a.err
}

func newTestServer(t *testing.T, admit Admitter) (*httptest.Server, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "chatlog.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	s := NewServer(Config{HealthPaths: []string{"/healthz"}}, st, admit, logx.Nop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, &fakeAdmitter{})
	for _, path := range []string{"/api/webhook/health", "/healthz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestChatsAndMessages(t *testing.T) {
	srv, st := newTestServer(t, &fakeAdmitter{})
	ctx := context.Background()

	chatID, err := st.GetOrCreateChat(ctx, "friends")
	if err != nil {
		t.Fatalf("GetOrCreateChat: %v", err)
	}
	ts := time.Date(2025, 5, 10, 1, 40, 0, 0, time.Local)
	if _, err := st.SaveMessages(ctx, chatID, []parse.Message{
		{Sender: "Alice", Timestamp: ts, Content: "hi"},
	}); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	resp, err := http.Get(srv.URL + "/api/chats")
	if err != nil {
		t.Fatalf("GET /api/chats: %v", err)
	}
	defer resp.Body.Close()
	var chats []store.ChatInfo
	if err := json.NewDecoder(resp.Body).Decode(&chats); err != nil {
		t.Fatalf("decode chats: %v", err)
	}
	if len(chats) != 1 || chats[0].Title != "friends" {
		t.Fatalf("chats = %+v", chats)
	}

	resp2, err := http.Get(srv.URL + "/api/chats/friends/messages")
	if err != nil {
		t.Fatalf("GET messages: %v", err)
	}
	defer resp2.Body.Close()
	var msgs []store.MessageRecord
	if err := json.NewDecoder(resp2.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Sender != "Alice" || msgs[0].ChatRoom != "friends" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestMessagesUnknownChat(t *testing.T) {
	srv, _ := newTestServer(t, &fakeAdmitter{})

	resp, err := http.Get(srv.URL + "/api/chats/nope/messages")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] == "" {
		t.Fatal("error body missing")
	}
}

func TestSignalIngress(t *testing.T) {
	admit := &fakeAdmitter{admitted: true}
	srv, _ := newTestServer(t, admit)

	resp, err := http.Post(srv.URL+"/api/signals", "application/json",
		strings.NewReader(`{"target_id": "0xbeef", "code": 32772}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var body signalResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Admitted {
		t.Fatal("expected admitted=true")
	}
	if admit.lastRef != "0xbeef" || admit.lastCode != 32772 {
		t.Fatalf("admitter saw ref=%q code=%d", admit.lastRef, admit.lastCode)
	}
}

func TestSignalIngressDropsQuietly(t *testing.T) {
	admit := &fakeAdmitter{admitted: false, err: errors.New("no window matched")}
	srv, _ := newTestServer(t, admit)

	resp, err := http.Post(srv.URL+"/api/signals", "application/json",
		strings.NewReader(`{"target_id": "0xdead"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	// Unresolvable signals are dropped, not errors: the source should not retry.
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var body signalResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Admitted {
		t.Fatal("expected admitted=false")
	}
}

func TestSignalIngressBadRequests(t *testing.T) {
	srv, _ := newTestServer(t, &fakeAdmitter{})

	for _, payload := range []string{`not json`, `{}`, `{"target_id": "  "}`} {
		resp, err := http.Post(srv.URL+"/api/signals", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("payload %q: status = %d, want 400", payload, resp.StatusCode)
		}
	}
}
