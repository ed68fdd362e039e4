package gatewayclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, server *httptest.Server, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = server.URL
	if cfg.APIKey == "" {
		cfg.APIKey = "test-key"
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = time.Millisecond
	}
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestSendText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/loja-1/messages" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected auth header %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"text":"Olá!"`) || !strings.Contains(string(body), `"to":"5511999990000"`) {
			t.Fatalf("unexpected body %s", body)
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"message_id":"m-1","status":"queued"}`))
	}))
	defer server.Close()

	resp, err := newTestClient(t, server, Config{}).SendText(context.Background(), SendTextRequest{SessionID: "loja-1", To: "5511999990000", Text: "Olá!"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.MessageID != "m-1" || resp.Status != "queued" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestSendTextRetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"message":"session busy"}`))
			return
		}
		_, _ = w.Write([]byte(`{"message_id":"m-2","status":"sent"}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server, Config{MaxRetries: 2}).SendText(context.Background(), SendTextRequest{SessionID: "s", To: "1", Text: "hi"})
	if err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestSendTextDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid recipient","code":"bad_to"}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server, Config{MaxRetries: 3}).SendText(context.Background(), SendTextRequest{SessionID: "s", To: "x", Text: "hi"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "bad_to" {
		t.Fatalf("expected api error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one attempt, got %d", calls)
	}
}

func TestSessionLifecycle(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(`{"session_id":"loja-1","state":"connected"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	ctx := context.Background()
	if st, err := client.StartSession(ctx, "loja-1"); err != nil || st.State != "connected" {
		t.Fatalf("start: %v %#v", err, st)
	}
	if _, err := client.ReconnectSession(ctx, "loja-1"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if err := client.CloseSession(ctx, "loja-1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	want := []string{"POST /sessions", "POST /sessions/loja-1/reconnect", "DELETE /sessions/loja-1"}
	for i, p := range want {
		if paths[i] != p {
			t.Fatalf("call %d = %s, want %s", i, paths[i], p)
		}
	}
}

func TestVerifySignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	payload := []byte(`{"event":"message"}`)
	sig := Sign("secret", ts, payload)

	if err := VerifySignature("secret", ts, sig, payload, time.Minute, now); err != nil {
		t.Fatalf("expected valid signature: %v", err)
	}
	if err := VerifySignature("secret", ts, sig, []byte(`{"event":"other"}`), time.Minute, now); err == nil {
		t.Fatal("expected mismatch for tampered payload")
	}
	if err := VerifySignature("secret", ts, sig, payload, time.Minute, now.Add(10*time.Minute)); err == nil {
		t.Fatal("expected skew rejection")
	}
	if err := VerifySignature("", ts, sig, payload, time.Minute, now); err == nil {
		t.Fatal("expected error without secret")
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without base URL")
	}
}

func TestRetriesReuseIdempotencyKey(t *testing.T) {
	var keys []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		if len(keys) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"message_id":"m-3"}`))
	}))
	defer server.Close()

	if _, err := newTestClient(t, server, Config{MaxRetries: 1}).SendText(context.Background(), SendTextRequest{SessionID: "s", To: "1", Text: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(keys) != 2 || keys[0] == "" || keys[0] != keys[1] {
		t.Fatalf("expected one key reused across attempts, got %v", keys)
	}
}

func TestRetryAfter(t *testing.T) {
	cases := map[string]time.Duration{
		"":                              0,
		"2":                             2 * time.Second,
		"-1":                            0,
		"3600":                          maxRetryAfter,
		"Wed, 21 Oct 2015 07:28:00 GMT": 0,
	}
	for header, want := range cases {
		if got := retryAfter(header); got != want {
			t.Fatalf("retryAfter(%q) = %s, want %s", header, got, want)
		}
	}
}

func TestNewRejectsRelativeBaseURL(t *testing.T) {
	if _, err := New(Config{BaseURL: "gateway.local"}); err == nil {
		t.Fatal("expected error for base URL without scheme")
	}
}

func TestVerifySignatureSentinels(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	if err := VerifySignature("", ts, "ab", nil, 0, now); !errors.Is(err, ErrNoWebhookSecret) {
		t.Fatalf("expected ErrNoWebhookSecret, got %v", err)
	}
	if err := VerifySignature("secret", ts, "deadbeef", []byte("x"), 0, now); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}
