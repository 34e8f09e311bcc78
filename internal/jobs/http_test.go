package jobs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestHTTPKind_PostsDefaultBody(t *testing.T) {
	var got struct {
		Job    string         `json:"job"`
		Params map[string]any `json:"params"`
	}
	var auth, jobHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		auth = r.Header.Get("Authorization")
		jobHeader = r.Header.Get("X-Cronlock-Job")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	job, err := Definition{
		Name:             "daily_digest",
		Kind:             KindHTTP,
		MaxExecutionTime: "1m",
		Config: map[string]any{
			"url":     server.URL,
			"headers": map[string]any{"Authorization": "Bearer secret"},
		},
	}.Build(Deps{HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	err = job.Run(context.Background(), Options{Params: map[string]any{"region": "eu"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if got.Job != "daily_digest" {
		t.Errorf("expected job daily_digest, got %q", got.Job)
	}
	if got.Params["region"] != "eu" {
		t.Errorf("expected params passed through, got %v", got.Params)
	}
	if auth != "Bearer secret" {
		t.Errorf("expected auth header, got %q", auth)
	}
	if jobHeader != "daily_digest" {
		t.Errorf("expected X-Cronlock-Job header, got %q", jobHeader)
	}
}

func TestHTTPKind_Non2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	job, err := Definition{
		Name: "daily_digest", Kind: KindHTTP, MaxExecutionTime: "1m",
		Config: map[string]any{"url": server.URL, "method": "get"},
	}.Build(Deps{HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	err = job.Run(context.Background(), Options{})
	if err == nil {
		t.Fatal("expected error for 502")
	}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "upstream down") {
		t.Errorf("error should carry status and body, got %v", err)
	}
}

func TestHTTPKind_DryRun(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	job, err := Definition{
		Name: "daily_digest", Kind: KindHTTP, MaxExecutionTime: "1m",
		Config: map[string]any{"url": server.URL},
	}.Build(Deps{HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if err := job.Run(context.Background(), Options{DryRun: true}); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("dry run must not call the webhook, got %d calls", calls.Load())
	}
}

func TestHTTPKind_CustomBody(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		body = string(data)
		if ct := r.Header.Get("Content-Type"); ct != "text/plain" {
			t.Errorf("expected configured content type, got %q", ct)
		}
	}))
	defer server.Close()

	job, err := Definition{
		Name: "ping", Kind: KindHTTP, MaxExecutionTime: "1m",
		Config: map[string]any{
			"url":     server.URL,
			"method":  "PUT",
			"body":    "hello",
			"headers": map[string]any{"Content-Type": "text/plain"},
			"timeout": "5s",
		},
	}.Build(Deps{HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if err := job.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if body != "hello" {
		t.Errorf("expected body hello, got %q", body)
	}
}
