package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchReturnsBodyVerbatimOn200(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("X-API-KEY"); got != "secret" {
			t.Errorf("expected X-API-KEY secret, got %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]string
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		if req["q"] != "golang jobs" {
			t.Errorf("expected q=golang jobs, got %q", req["q"])
		}
		if req["gl"] != "in" {
			t.Errorf("expected gl=in, got %q", req["gl"])
		}
		w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	c := NewClient("secret", WithEndpoint(srv.URL))
	got, err := c.Search(context.Background(), "golang jobs")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if got != `{"results": []}` {
		t.Fatalf("expected verbatim body, got %q", got)
	}
}

func TestSearchFormatsNon200AsToolOutput(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("forbidden"))
	}))
	defer srv.Close()

	c := NewClient("bad-key", WithEndpoint(srv.URL))
	got, err := c.Search(context.Background(), "anything")
	if err != nil {
		t.Fatalf("non-200 must not be an error, got: %v", err)
	}
	if got != "Error: 403 - forbidden" {
		t.Fatalf("expected %q, got %q", "Error: 403 - forbidden", got)
	}
}

func TestSearchTransportFailureIsAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient("secret", WithEndpoint(srv.URL))
	if _, err := c.Search(context.Background(), "anything"); err == nil {
		t.Fatal("expected transport error")
	}
}
