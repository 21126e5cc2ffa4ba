package generate

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoJSON indicates no balanced JSON value could be found in the text.
var ErrNoJSON = errors.New("no JSON value found in response")

// ExtractJSON returns the first balanced top-level JSON array or object found
// in the text. Collaborator responses routinely wrap the payload in prose, so
// extraneous surrounding text is tolerated. Any failure here is a parse
// failure recovered by the caller's fallback, never a fatal error.
func ExtractJSON(text string) (json.RawMessage, error) {
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '[' && c != '{' {
			continue
		}
		end, ok := scanBalanced(text, i)
		if !ok {
			continue
		}
		candidate := json.RawMessage(text[i : end+1])
		if json.Valid(candidate) {
			return candidate, nil
		}
	}
	return nil, ErrNoJSON
}

// scanBalanced finds the index of the bracket closing the value that opens at
// start, honoring string literals and escapes. Returns false if the text ends
// before the value is balanced.
func scanBalanced(text string, start int) (int, bool) {
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
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// decodeInto extracts the first JSON value from text and unmarshals it.
func decodeInto(text string, v any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode extracted JSON: %w", err)
	}
	return nil
}
