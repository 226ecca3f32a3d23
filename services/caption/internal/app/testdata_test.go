package app

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/Akshay1705/caption.ai/pkg/ai"
)

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)
	jpegBytes = append([]byte{0xff, 0xd8, 0xff, 0xe0}, make([]byte, 16)...)
	heicBytes = append([]byte("\x00\x00\x00\x18ftypheic"), make([]byte, 16)...)
)

func pngDataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
}

type fakeGenerator struct {
	mu     sync.Mutex
	calls  int
	prompt string
	image  ai.Image
	reply  string
	err    error
}

func (f *fakeGenerator) GenerateFromImage(_ context.Context, prompt string, img ai.Image) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompt = prompt
	f.image = img
	return f.reply, f.err
}

type fakeImageStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	putErr  error
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{objects: make(map[string][]byte)}
}

func (f *fakeImageStore) PutImage(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = data
	return nil
}

func (f *fakeImageStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[key]; !ok {
		return "", errors.New("no such key")
	}
	return "https://objects.test/" + key + "?sig=1", nil
}

func (f *fakeImageStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}
