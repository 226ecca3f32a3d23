package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
)

// Image is a decoded inline image handed to a multimodal model.
type Image struct {
	MIMEType string
	Data     []byte
}

// Base64 returns the standard base64 encoding of the image bytes.
func (img Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// DataURL renders the image as a data: URL.
func (img Image) DataURL() string {
	return "data:" + img.MIMEType + ";base64," + img.Base64()
}

// VisionGenerator generates text from a prompt and a single image.
// All LLM providers (Gemini, Ollama, OpenAI-compatible) implement this interface.
type VisionGenerator interface {
	GenerateFromImage(ctx context.Context, prompt string, img Image) (string, error)
}

// APIError is returned when a provider answers with a non-2xx status.
// The status code is part of Error() so callers can match on it.
type APIError struct {
	Provider   string
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	code := strconv.Itoa(e.StatusCode)
	if e.Status != "" {
		code += " " + e.Status
	}
	msg := fmt.Sprintf("%s api error: [%s]", e.Provider, code)
	if e.Message != "" {
		msg += " " + e.Message
	}
	return msg
}
