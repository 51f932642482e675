// Package i18n models multilingual catalog fields (language code → string)
// as an ordered list rather than a free-form object.
package i18n

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Entry struct {
	Lang  string
	Value string
}

// Text is an ordered language → string mapping. Key order is preserved
// through JSON round trips so snapshots are stored exactly as read.
type Text struct {
	entries []Entry
}

func New(entries ...Entry) Text {
	t := Text{}
	for _, e := range entries {
		t.Set(e.Lang, e.Value)
	}
	return t
}

// Set replaces the value for lang or appends it.
func (t *Text) Set(lang, value string) {
	for i := range t.entries {
		if t.entries[i].Lang == lang {
			t.entries[i].Value = value
			return
		}
	}
	t.entries = append(t.entries, Entry{Lang: lang, Value: value})
}

func (t Text) Get(lang string) (string, bool) {
	for _, e := range t.entries {
		if e.Lang == lang {
			return e.Value, true
		}
	}
	return "", false
}

// Display returns the value for lang, falling back to the first entry.
func (t Text) Display(lang string) string {
	if v, ok := t.Get(lang); ok {
		return v
	}
	if len(t.entries) > 0 {
		return t.entries[0].Value
	}
	return ""
}

func (t Text) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t Text) Len() int { return len(t.entries) }

// Validate reports every required language that is missing or blank.
func (t Text) Validate(required []string) error {
	var missing []string
	for _, lang := range required {
		if v, ok := t.Get(lang); !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, lang)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing translations: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (t Text) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range t.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Lang)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t *Text) UnmarshalJSON(data []byte) error {
	t.entries = nil
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("i18n: expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("i18n: expected string key, got %v", keyTok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("i18n: value for %q: %w", key, err)
		}
		t.Set(key, value)
	}
	_, err = dec.Token()
	return err
}
