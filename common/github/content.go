package github

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// ContentFile holds information about a single file in a repo. Content is
// empty when the file came from a directory listing, which does not include
// file bytes.
type ContentFile struct {
	Name        string
	SHA         string
	LastUpdated time.Time

	content string // base64-encoded

	decoded    string
	hasDecoded bool
}

// DecodedContent returns the file content as UTF-8 text, decoding it once
// and memoizing. It returns empty for directory-listing entries.
func (f *ContentFile) DecodedContent() (string, error) {
	if f.content == "" {
		return "", nil
	}
	if !f.hasDecoded {
		// The API wraps base64 content across lines
		data, err := base64.StdEncoding.DecodeString(stripWhitespace(f.content))
		if err != nil {
			return "", fmt.Errorf("decode content of %s: %w", f.Name, err)
		}
		f.decoded = string(data)
		f.hasDecoded = true
	}
	return f.decoded, nil
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
}
