package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAsk_Answered(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ask" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			Question string `json:"question"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Question != "営業時間は？" {
			t.Errorf("question = %q", req.Question)
		}
		json.NewEncoder(w).Encode(map[string]any{"answer": "9時から18時です。", "fallback": false})
	}))
	defer server.Close()

	c := New(server.URL)
	ans, err := c.Ask(context.Background(), "営業時間は？")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if ans.Fallback || ans.Text != "9時から18時です。" {
		t.Errorf("unexpected answer: %+v", ans)
	}
}

func TestAsk_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"bad request", http.StatusBadRequest, ErrInvalidQuestion},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"backend down", http.StatusBadGateway, ErrBackendUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]string{"code": "x", "message": "details"})
			}))
			defer server.Close()

			_, err := New(server.URL).Ask(context.Background(), "q")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAsk_UnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := New(server.URL).Ask(context.Background(), "q")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestReady(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/readyz" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"status": "ok",
				"checks": map[string]string{"index": "ok", "embedding": "ok", "chat": "ok"},
			})
		}))
		defer server.Close()

		r, err := New(server.URL).Ready(context.Background())
		if err != nil {
			t.Fatalf("Ready failed: %v", err)
		}
		if !r.Ready || r.Checks["index"] != "ok" {
			t.Errorf("unexpected readiness: %+v", r)
		}
	})

	t.Run("degraded", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{
				"status": "degraded",
				"checks": map[string]string{"index": "error"},
			})
		}))
		defer server.Close()

		r, err := New(server.URL).Ready(context.Background())
		if err != nil {
			t.Fatalf("Ready failed: %v", err)
		}
		if r.Ready || r.Status != "degraded" {
			t.Errorf("unexpected readiness: %+v", r)
		}
	})
}
