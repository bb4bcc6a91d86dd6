package survey

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Value is a single answer: one string, or an ordered list for multi-select fields.
type Value struct {
	single string
	multi  []string
	isMany bool
}

// Single returns a one-string value.
func Single(s string) Value {
	return Value{single: s}
}

// Multi returns an ordered multi-value. Order is preserved on the wire.
func Multi(values ...string) Value {
	out := make([]string, len(values))
	copy(out, values)
	return Value{multi: out, isMany: true}
}

func (v Value) IsMulti() bool { return v.isMany }

// Strings returns the value as a list; a single value yields one element,
// an empty single value yields none.
func (v Value) Strings() []string {
	if v.isMany {
		out := make([]string, len(v.multi))
		copy(out, v.multi)
		return out
	}
	if v.single == "" {
		return nil
	}
	return []string{v.single}
}

// String joins multi-values with ", " the way the spreadsheet columns expect.
func (v Value) String() string {
	if v.isMany {
		return strings.Join(v.multi, ", ")
	}
	return v.single
}

// Empty reports whether the value carries no non-blank content.
func (v Value) Empty() bool {
	if v.isMany {
		for _, s := range v.multi {
			if strings.TrimSpace(s) != "" {
				return false
			}
		}
		return true
	}
	return strings.TrimSpace(v.single) == ""
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.isMany {
		if v.multi == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.multi)
	}
	return json.Marshal(v.single)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty value")
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = Single(s)
		return nil
	case '[':
		var list []string
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("multi-value must be a list of strings: %w", err)
		}
		*v = Multi(list...)
		return nil
	default:
		return fmt.Errorf("value must be a string or a list of strings, got %s", trimmed)
	}
}
