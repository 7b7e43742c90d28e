package qinput

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/quatton/toolsite/pkg/qtool"
)

// DefaultMaxUploadBytes caps the decoded size of all uploads in one request.
const DefaultMaxUploadBytes int64 = 25 << 20

// Upload is one named file payload from a guided submission.
type Upload struct {
	Name string
	Data []byte
}

// ParseFiles decodes the loosely typed "files" object of a guided request:
// each key maps to a list of {name, base64} objects, or to a single object.
// The decoded total must stay within maxBytes (0 means unlimited).
func ParseFiles(raw map[string]any, maxBytes int64) (map[string][]Upload, error) {
	if len(raw) == 0 {
		return map[string][]Upload{}, nil
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var total int64
	out := make(map[string][]Upload, len(raw))
	for _, key := range keys {
		var entries []any
		switch v := raw[key].(type) {
		case nil:
			continue
		case map[string]any:
			entries = []any{v}
		case []any:
			entries = v
		default:
			return nil, qtool.Invalid("files."+key, "must be a list of uploads")
		}

		uploads := make([]Upload, 0, len(entries))
		for i, entry := range entries {
			obj, ok := entry.(map[string]any)
			if !ok {
				return nil, qtool.Invalid(fmt.Sprintf("files.%s[%d]", key, i), "must be an object")
			}
			name, _ := obj["name"].(string)
			if strings.TrimSpace(name) == "" {
				return nil, qtool.Invalid(fmt.Sprintf("files.%s[%d].name", key, i), "is required")
			}
			payload, _ := obj["base64"].(string)
			if payload == "" {
				return nil, qtool.Invalid(fmt.Sprintf("files.%s[%d].base64", key, i), "is required")
			}
			data, err := decodeBase64(payload)
			if err != nil {
				return nil, qtool.Invalid(fmt.Sprintf("files.%s[%d].base64", key, i), "invalid base64: %v", err)
			}
			total += int64(len(data))
			if maxBytes > 0 && total > maxBytes {
				return nil, qtool.Invalid("files", "upload too large (limit %d bytes)", maxBytes)
			}
			uploads = append(uploads, Upload{Name: name, Data: data})
		}
		out[key] = uploads
	}
	return out, nil
}

// decodeBase64 accepts standard or URL alphabets, padded or not, and
// tolerates a data: URL prefix as produced by browser FileReader.
func decodeBase64(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if _, rest, ok := strings.Cut(s, ","); ok {
			s = rest
		}
	}
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)

	encodings := []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding}
	var firstErr error
	for _, enc := range encodings {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
