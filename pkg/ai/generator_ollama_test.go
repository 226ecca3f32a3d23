package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaGeneratorSendsBase64Image(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Model != "llava" || req.Format != "json" || req.Stream {
			t.Fatalf("unexpected request: %+v", req)
		}
		if len(req.Messages) != 1 || len(req.Messages[0].Images) != 1 || req.Messages[0].Images[0] != "AQID" {
			t.Fatalf("unexpected messages: %+v", req.Messages)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"{\"caption\":\"x\"}"}}`))
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(NewOllamaClient(srv.URL), "llava")
	text, err := gen.GenerateFromImage(context.Background(), "p", Image{MIMEType: "image/png", Data: []byte{1, 2, 3}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != `{"caption":"x"}` {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestOllamaGeneratorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(NewOllamaClient(srv.URL), "missing")
	_, err := gen.GenerateFromImage(context.Background(), "p", Image{MIMEType: "image/png", Data: []byte{1}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "model not found" {
		t.Fatalf("unexpected error: %v", err)
	}
}
