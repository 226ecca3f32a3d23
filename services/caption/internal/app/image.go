package app

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/Akshay1705/caption.ai/pkg/ai"
)

var supportedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
	"image/heic": true,
	"image/heif": true,
}

// DecodeImage turns an embedded image string into bytes tagged with a media
// type. It accepts a data URL ("data:image/png;base64,...") or bare base64.
// The sniffed type wins over a declared one; the declared type is used only
// when the bytes are not recognised.
func DecodeImage(raw string, maxBytes int) (ai.Image, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ai.Image{}, ErrMissingImage
	}

	declared := ""
	payload := raw
	if rest, ok := cutPrefixFold(raw, "data:"); ok {
		header, data, found := strings.Cut(rest, ",")
		if !found {
			return ai.Image{}, ErrInvalidImage
		}
		params := strings.Split(header, ";")
		declared = normalizeMIME(params[0])
		isBase64 := false
		for _, p := range params[1:] {
			if strings.EqualFold(strings.TrimSpace(p), "base64") {
				isBase64 = true
			}
		}
		if !isBase64 {
			return ai.Image{}, ErrInvalidImage
		}
		payload = data
	}

	payload = stripSpace(payload)
	if payload == "" {
		return ai.Image{}, ErrInvalidImage
	}
	if maxBytes > 0 && base64.StdEncoding.DecodedLen(len(payload)) > maxBytes+3 {
		return ai.Image{}, ErrImageTooLarge
	}
	data, err := decodeBase64(payload)
	if err != nil || len(data) == 0 {
		return ai.Image{}, ErrInvalidImage
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return ai.Image{}, ErrImageTooLarge
	}

	mime := sniffImageType(data)
	if mime == "" {
		mime = declared
	}
	if !supportedImageTypes[mime] {
		return ai.Image{}, ErrUnsupportedImage
	}
	return ai.Image{MIMEType: mime, Data: data}, nil
}

func decodeBase64(s string) ([]byte, error) {
	if strings.ContainsAny(s, "-_") {
		if strings.HasSuffix(s, "=") {
			return base64.URLEncoding.DecodeString(s)
		}
		return base64.RawURLEncoding.DecodeString(s)
	}
	if strings.HasSuffix(s, "=") || len(s)%4 == 0 {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// sniffImageType returns the detected media type, or "" when the content is
// not recognised at all.
func sniffImageType(data []byte) string {
	if t := sniffHEIF(data); t != "" {
		return t
	}
	t := http.DetectContentType(data)
	if t == "application/octet-stream" {
		return ""
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return t
}

// sniffHEIF inspects the ISO-BMFF ftyp box, which DetectContentType ignores.
func sniffHEIF(data []byte) string {
	if len(data) < 12 || !bytes.Equal(data[4:8], []byte("ftyp")) {
		return ""
	}
	switch string(data[8:12]) {
	case "heic", "heix", "hevc", "hevx", "heim", "heis", "hevm", "hevs":
		return "image/heic"
	case "mif1", "msf1", "heif":
		return "image/heif"
	}
	return ""
}

func normalizeMIME(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if m == "image/jpg" || m == "image/pjpeg" {
		return "image/jpeg"
	}
	return m
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
