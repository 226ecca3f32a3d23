package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Akshay1705/caption.ai/pkg/domain"
)

// ExtractionMode selects what happens when the model output does not parse.
type ExtractionMode string

const (
	// ModeStrict rejects unparseable output with ErrExtraction.
	ModeStrict ExtractionMode = "strict"
	// ModeTolerant returns the cleaned text as the caption with empty lists.
	ModeTolerant ExtractionMode = "tolerant"
)

// ParseExtractionMode validates a configured mode. Empty means strict.
func ParseExtractionMode(s string) (ExtractionMode, error) {
	switch ExtractionMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStrict:
		return ModeStrict, nil
	case ModeTolerant:
		return ModeTolerant, nil
	}
	return "", fmt.Errorf("unknown extraction mode: %s", s)
}

// Extraction is the extractor output. Degraded is set when tolerant mode
// fell back to the raw text.
type Extraction struct {
	Result   domain.GenerationResult
	Degraded bool
	Cleaned  string
}

type captionPayload struct {
	Caption  *string  `json:"caption"`
	Hashtags []string `json:"hashtags"`
	Songs    []string `json:"songs"`
}

// Extract recovers {caption, hashtags, songs} from raw model text.
func Extract(raw string, mode ExtractionMode) (Extraction, error) {
	cleaned := stripFences(raw)
	result, err := parseResult(cleaned)
	if err == nil {
		return Extraction{Result: result, Cleaned: cleaned}, nil
	}
	if mode == ModeTolerant {
		return Extraction{
			Result:   domain.GenerationResult{Caption: cleaned, Hashtags: []string{}, Songs: []string{}},
			Degraded: true,
			Cleaned:  cleaned,
		}, nil
	}
	return Extraction{Cleaned: cleaned}, fmt.Errorf("%w: %v", ErrExtraction, err)
}

// stripFences removes ``` markers, including a ```json opener, wherever they appear.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for {
		i := strings.Index(s, "```")
		if i < 0 {
			break
		}
		rest := s[i+3:]
		if len(rest) >= 4 && strings.EqualFold(rest[:4], "json") {
			rest = rest[4:]
		}
		s = s[:i] + rest
	}
	return strings.TrimSpace(s)
}

func parseResult(cleaned string) (domain.GenerationResult, error) {
	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end < start {
		return domain.GenerationResult{}, fmt.Errorf("no json object in response")
	}
	var payload captionPayload
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &payload); err != nil {
		return domain.GenerationResult{}, err
	}
	if payload.Caption == nil || strings.TrimSpace(*payload.Caption) == "" {
		return domain.GenerationResult{}, fmt.Errorf("caption missing")
	}
	return domain.GenerationResult{
		Caption:  strings.TrimSpace(*payload.Caption),
		Hashtags: normalizeHashtags(payload.Hashtags),
		Songs:    normalizeList(payload.Songs),
	}, nil
}

func normalizeHashtags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(tag), "#"))
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
