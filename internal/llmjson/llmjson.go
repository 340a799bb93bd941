// Package llmjson recovers JSON objects from chat-model replies, which often
// wrap the object in prose or markdown fences.
package llmjson

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/teranos/quotesearch/errors"
)

// FirstObject returns the first balanced {...} in text. Braces inside JSON
// strings (including escaped quotes) are ignored.
func FirstObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// DecodeStrict recovers the first object from text and decodes it into out,
// rejecting unknown fields.
func DecodeStrict(text string, out interface{}) error {
	obj, ok := FirstObject(text)
	if !ok {
		return errors.New("no JSON object in engine response")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(obj)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return errors.Wrap(err, "engine response does not match schema")
	}
	return nil
}
