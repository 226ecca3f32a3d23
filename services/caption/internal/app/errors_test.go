package app

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Akshay1705/caption.ai/pkg/ai"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    Category
		message string
	}{
		{name: "503", err: errors.New("[GoogleGenerativeAI Error]: [503 Service Unavailable] overloaded"), want: CategoryOverloaded, message: msgOverloaded},
		{name: "429", err: errors.New("status 429"), want: CategoryRateLimited, message: msgRateLimited},
		{name: "401", err: errors.New("got 401 from upstream"), want: CategoryAuthFailure, message: msgAuthFailure},
		{name: "503 checked before 429", err: errors.New("503 after 429 retries"), want: CategoryOverloaded},
		{name: "401 checked before 429", err: errors.New("401 then 429"), want: CategoryAuthFailure},
		{name: "api error status", err: fmt.Errorf("ollama generate: %w", &ai.APIError{Provider: "ollama", StatusCode: 429, Message: "slow down"}), want: CategoryRateLimited},
		{name: "gemini unavailable", err: &ai.APIError{Provider: "gemini", StatusCode: 503, Status: "UNAVAILABLE"}, want: CategoryOverloaded},
		{name: "gemini bad key", err: &ai.APIError{Provider: "gemini", StatusCode: 400, Status: "INVALID_ARGUMENT", Message: "API key not valid. Please pass a valid API key."}, want: CategoryAuthFailure},
		{name: "gemini key denied", err: &ai.APIError{Provider: "gemini", StatusCode: 403, Status: "PERMISSION_DENIED", Message: "Your API key was reported as leaked."}, want: CategoryAuthFailure, message: msgAuthFailure},
		{name: "exhausted", err: errors.New("RESOURCE_EXHAUSTED"), want: CategoryRateLimited},
		{name: "unknown passes api message", err: &ai.APIError{Provider: "gemini", StatusCode: 400, Status: "INVALID_ARGUMENT", Message: "Unsupported MIME type"}, want: CategoryUnknownUpstream, message: "Unsupported MIME type"},
		{name: "unknown passes text", err: errors.New("dial tcp: connection refused"), want: CategoryUnknownUpstream, message: "dial tcp: connection refused"},
		{name: "missing image", err: ErrMissingImage, want: CategoryMissingInput, message: "No image provided"},
		{name: "missing post id", err: ErrMissingPostID, want: CategoryMissingInput, message: "Post ID is required"},
		{name: "invalid image", err: ErrUnsupportedImage, want: CategoryInvalidInput},
		{name: "too large", err: ErrImageTooLarge, want: CategoryInvalidInput, message: msgImageTooLarge},
		{name: "extraction", err: fmt.Errorf("%w: bad json", ErrExtraction), want: CategoryExtractionFailure},
		{name: "unauthenticated", err: ErrUnauthenticated, want: CategoryUnauthenticated, message: "Unauthorized"},
		{name: "already classified", err: storeError(msgStoreSave, errors.New("503 from db proxy")), want: CategoryStoreError, message: msgStoreSave},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if got.Category != tc.want {
				t.Fatalf("category = %s, want %s", got.Category, tc.want)
			}
			if tc.message != "" && got.Message != tc.message {
				t.Fatalf("message = %q, want %q", got.Message, tc.message)
			}
			if !errors.Is(got, tc.err) && got != tc.err {
				t.Fatalf("classified error should wrap the cause")
			}
		})
	}
	if Classify(nil) != nil {
		t.Fatalf("nil error should classify to nil")
	}
}

func TestCategoryHTTPStatus(t *testing.T) {
	cases := map[Category]int{
		CategoryMissingInput:      http.StatusBadRequest,
		CategoryInvalidInput:      http.StatusBadRequest,
		CategoryAuthFailure:       http.StatusUnauthorized,
		CategoryUnauthenticated:   http.StatusUnauthorized,
		CategoryOverloaded:        http.StatusInternalServerError,
		CategoryRateLimited:       http.StatusInternalServerError,
		CategoryUnknownUpstream:   http.StatusInternalServerError,
		CategoryExtractionFailure: http.StatusInternalServerError,
		CategoryStoreError:        http.StatusInternalServerError,
	}
	for c, want := range cases {
		if got := c.HTTPStatus(); got != want {
			t.Fatalf("%s status = %d, want %d", c, got, want)
		}
	}
}
