package storage

import (
	"strings"
	"testing"
)

func TestImageKeyLayout(t *testing.T) {
	a := ImageKey("User@Example.com", "image/jpeg")
	b := ImageKey("user@example.com ", "image/jpeg")
	if !strings.HasPrefix(a, "posts/") || !strings.HasSuffix(a, ".jpg") {
		t.Fatalf("unexpected key: %s", a)
	}
	if strings.Contains(a, "example.com") {
		t.Fatalf("owner leaked into key: %s", a)
	}
	if a == b {
		t.Fatalf("keys should be unique per call")
	}
	prefixA := a[:strings.LastIndex(a, "/")]
	prefixB := b[:strings.LastIndex(b, "/")]
	if prefixA != prefixB {
		t.Fatalf("same owner should share a prefix: %s vs %s", prefixA, prefixB)
	}
}

func TestImageKeyUnknownType(t *testing.T) {
	key := ImageKey("u", "application/octet-stream")
	if strings.Contains(key[strings.LastIndex(key, "/"):], ".") {
		t.Fatalf("unknown type should have no extension: %s", key)
	}
}
