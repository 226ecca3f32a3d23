package app

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Akshay1705/caption.ai/pkg/ai"
)

// Category is the user-facing failure class.
type Category string

const (
	CategoryMissingInput      Category = "missing_input"
	CategoryInvalidInput      Category = "invalid_input"
	CategoryAuthFailure       Category = "auth_failure"
	CategoryOverloaded        Category = "overloaded"
	CategoryRateLimited       Category = "rate_limited"
	CategoryUnknownUpstream   Category = "unknown_upstream"
	CategoryExtractionFailure Category = "extraction_failure"
	CategoryUnauthenticated   Category = "unauthenticated"
	CategoryStoreError        Category = "store_error"
)

// HTTPStatus maps the category to the boundary status code.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryMissingInput, CategoryInvalidInput:
		return http.StatusBadRequest
	case CategoryAuthFailure, CategoryUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

var (
	ErrMissingImage     = errors.New("image missing")
	ErrInvalidImage     = errors.New("image not decodable")
	ErrImageTooLarge    = errors.New("image too large")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrExtraction       = errors.New("response extraction failed")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrMissingPostID    = errors.New("post id missing")
)

const (
	msgMissingImage    = "No image provided"
	msgInvalidImage    = "The image could not be read. Please upload a PNG, JPEG, WebP, GIF or HEIC photo."
	msgImageTooLarge   = "The image is too large. Please upload a smaller photo."
	msgAuthFailure     = "Authentication failed. Please check your API key."
	msgOverloaded      = "The AI service is currently overloaded. Please try again in a few moments."
	msgRateLimited     = "Too many requests. Please wait a bit before trying again."
	msgExtraction      = "The AI response could not be understood. Please try again."
	msgUnauthenticated = "Unauthorized"
	msgMissingPostID   = "Post ID is required"
	msgUnknownUpstream = "Something went wrong. Please try again later."
	msgStoreSave       = "Could not save your post. Please try again."
	msgStoreLoad       = "Could not load your history. Please try again."
	msgStoreDelete     = "Could not delete the post. Please try again."
)

// Error is a classified failure. Message is safe to show to users.
type Error struct {
	Category Category
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Category) + ": " + e.Err.Error()
	}
	return string(e.Category) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the boundary status code.
func (e *Error) Status() int { return e.Category.HTTPStatus() }

type signalRule struct {
	signal   string
	category Category
	message  string
}

// upstreamRules is checked in order against the failure text; the first
// match wins. Numeric statuses come before provider status names.
var upstreamRules = []signalRule{
	{"503", CategoryOverloaded, msgOverloaded},
	{"UNAVAILABLE", CategoryOverloaded, msgOverloaded},
	{"401", CategoryAuthFailure, msgAuthFailure},
	{"UNAUTHENTICATED", CategoryAuthFailure, msgAuthFailure},
	{"PERMISSION_DENIED", CategoryAuthFailure, msgAuthFailure},
	{"API key not valid", CategoryAuthFailure, msgAuthFailure},
	{"429", CategoryRateLimited, msgRateLimited},
	{"RESOURCE_EXHAUSTED", CategoryRateLimited, msgRateLimited},
}

var inputErrors = []struct {
	err      error
	category Category
	message  string
}{
	{ErrMissingImage, CategoryMissingInput, msgMissingImage},
	{ErrMissingPostID, CategoryMissingInput, msgMissingPostID},
	{ErrImageTooLarge, CategoryInvalidInput, msgImageTooLarge},
	{ErrInvalidImage, CategoryInvalidInput, msgInvalidImage},
	{ErrUnsupportedImage, CategoryInvalidInput, msgInvalidImage},
	{ErrExtraction, CategoryExtractionFailure, msgExtraction},
	{ErrUnauthenticated, CategoryUnauthenticated, msgUnauthenticated},
}

// Classify maps any pipeline failure to a categorized Error. Errors that are
// already classified pass through unchanged; unmatched errors become
// unknown_upstream carrying the cause text.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	for _, ie := range inputErrors {
		if errors.Is(err, ie.err) {
			return &Error{Category: ie.category, Message: ie.message, Err: err}
		}
	}
	signal := err.Error()
	for _, rule := range upstreamRules {
		if strings.Contains(signal, rule.signal) {
			return &Error{Category: rule.category, Message: rule.message, Err: err}
		}
	}
	return &Error{Category: CategoryUnknownUpstream, Message: upstreamMessage(err), Err: err}
}

func upstreamMessage(err error) string {
	var apiErr *ai.APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return strings.TrimSpace(apiErr.Message)
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return msgUnknownUpstream
}

func storeError(message string, err error) *Error {
	return &Error{Category: CategoryStoreError, Message: message, Err: err}
}
