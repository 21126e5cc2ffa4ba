package generate

import "testing"

func TestExtractJSONArray(t *testing.T) {
	text := `Here is the plan you asked for:

[{"id": "a", "title": "first"}, {"id": "b", "title": "second"}]

Let me know if you want changes.`

	raw, err := ExtractJSON(text)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if string(raw) != `[{"id": "a", "title": "first"}, {"id": "b", "title": "second"}]` {
		t.Errorf("unexpected extraction: %s", raw)
	}
}

func TestExtractJSONObject(t *testing.T) {
	raw, err := ExtractJSON(`I think {"sufficient": true, "reason": "enough context"} covers it`)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if string(raw) != `{"sufficient": true, "reason": "enough context"}` {
		t.Errorf("unexpected extraction: %s", raw)
	}
}

func TestExtractJSONNestedBrackets(t *testing.T) {
	text := `[{"title": "use arr[0] and {braces} in strings", "deps": ["x"]}]`
	raw, err := ExtractJSON(text)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if string(raw) != text {
		t.Errorf("unexpected extraction: %s", raw)
	}
}

func TestExtractJSONEscapedQuotes(t *testing.T) {
	text := `noise {"text": "a \"quoted\" value"} trailer`
	raw, err := ExtractJSON(text)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if string(raw) != `{"text": "a \"quoted\" value"}` {
		t.Errorf("unexpected extraction: %s", raw)
	}
}

func TestExtractJSONSkipsUnbalanced(t *testing.T) {
	// The first bracket never closes; the second value is complete.
	text := `broken [1, 2 ... then later {"ok": true}`
	raw, err := ExtractJSON(text)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if string(raw) != `{"ok": true}` {
		t.Errorf("unexpected extraction: %s", raw)
	}
}

func TestExtractJSONNone(t *testing.T) {
	if _, err := ExtractJSON("no structured content here"); err == nil {
		t.Error("expected error when no JSON present")
	}
}
