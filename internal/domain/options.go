package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Option is one labelled answer choice.
type Option struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Options is an ordered label→text mapping. On the wire it is a JSON object
// whose key order is the display order.
type Options []Option

// Has reports whether label is one of the choices.
func (o Options) Has(label string) bool {
	for _, opt := range o {
		if opt.Label == label {
			return true
		}
	}
	return false
}

// Validate checks that labels are non-empty and unique.
func (o Options) Validate() error {
	seen := make(map[string]struct{}, len(o))
	for _, opt := range o {
		if opt.Label == "" {
			return fmt.Errorf("%w: empty option label", ErrMalformedInput)
		}
		if _, dup := seen[opt.Label]; dup {
			return fmt.Errorf("%w: duplicate option label %q", ErrMalformedInput, opt.Label)
		}
		seen[opt.Label] = struct{}{}
	}
	return nil
}

func (o Options) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, opt := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(opt.Label)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(opt.Text)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the object form and, for stored rows, the array form
// of {label,text} pairs.
func (o *Options) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*o = nil
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []Option
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*o = list
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("options: expected object, got %v", tok)
	}
	out := Options{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		label, _ := tok.(string)
		var text string
		if err := dec.Decode(&text); err != nil {
			return fmt.Errorf("options: value for %q: %w", label, err)
		}
		out = append(out, Option{Label: label, Text: text})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = out
	return nil
}
