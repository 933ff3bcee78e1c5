// Package codec converts between the wire representation of images (data
// URIs or bare base64) and raster buffers.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/dunamismax/printflow/internal/imgerr"
)

const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
)

var (
	ErrEmptyPayload = errors.New("image payload is empty")
	ErrNotImageURI  = errors.New("data URI does not carry an image")
)

// ParseDataURI splits a `data:image/<fmt>;base64,<payload>` string, or a bare
// base64 payload, into its MIME type and decoded bytes. The MIME type is empty
// for bare payloads.
func ParseDataURI(s string) (string, []byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil, imgerr.Decode("parse data uri", ErrEmptyPayload)
	}

	mime := ""
	payload := s
	if strings.HasPrefix(strings.ToLower(s), "data:") {
		header, body, ok := strings.Cut(s, ",")
		if !ok {
			return "", nil, imgerr.Decodef("parse data uri", "missing ',' separator")
		}
		meta := strings.Split(strings.TrimPrefix(header[len("data:"):], " "), ";")
		mime = strings.ToLower(strings.TrimSpace(meta[0]))
		if mime != "" && !strings.HasPrefix(mime, "image/") {
			return "", nil, imgerr.Decode("parse data uri", fmt.Errorf("%w: %s", ErrNotImageURI, mime))
		}
		isBase64 := false
		for _, param := range meta[1:] {
			if strings.EqualFold(strings.TrimSpace(param), "base64") {
				isBase64 = true
			}
		}
		if !isBase64 {
			return "", nil, imgerr.Decodef("parse data uri", "only base64 data URIs are supported")
		}
		payload = body
	}

	data, err := decodeBase64(payload)
	if err != nil {
		return "", nil, imgerr.Decode("decode base64", err)
	}
	if len(data) == 0 {
		return "", nil, imgerr.Decode("decode base64", ErrEmptyPayload)
	}
	return mime, data, nil
}

// DataURI renders data as a base64 data URI.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func decodeBase64(payload string) ([]byte, error) {
	// Payloads pasted from browsers sometimes carry line breaks.
	payload = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t', ' ':
			return -1
		}
		return r
	}, payload)

	if data, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return data, nil
	}
	if data, err := base64.RawStdEncoding.DecodeString(payload); err == nil {
		return data, nil
	}
	data, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("malformed base64 payload: %w", err)
	}
	return data, nil
}
