package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAICompatSendsImageURLPart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Fatalf("missing bearer token")
		}
		var req oaiChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		parts := req.Messages[0].Content
		if len(parts) != 2 || parts[1].ImageURL == nil {
			t.Fatalf("unexpected parts: %+v", parts)
		}
		if !strings.HasPrefix(parts[1].ImageURL.URL, "data:image/webp;base64,") {
			t.Fatalf("unexpected image url: %s", parts[1].ImageURL.URL)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" {\"caption\":\"ok\"} "}}]}`))
	}))
	defer srv.Close()

	gen := NewOpenAICompatGenerator(srv.URL+"/v1/", "secret", "gpt-4o-mini")
	text, err := gen.GenerateFromImage(context.Background(), "p", Image{MIMEType: "image/webp", Data: []byte("img")})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != `{"caption":"ok"}` {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestOpenAICompatUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	gen := NewOpenAICompatGenerator(srv.URL, "", "m")
	_, err := gen.GenerateFromImage(context.Background(), "p", Image{MIMEType: "image/png", Data: []byte{1}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(err.Error(), "401") {
		t.Fatalf("error text should carry status: %q", err.Error())
	}
}
