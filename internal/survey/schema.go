package survey

import (
	"fmt"
	"regexp"
)

// Kind is the input control a field is collected with.
type Kind string

const (
	KindText     Kind = "text"
	KindTextarea Kind = "textarea"
	KindTel      Kind = "tel"
	KindRadio    Kind = "radio"
	KindSelect   Kind = "select"
	KindCheckbox Kind = "checkbox"
)

func (k Kind) valid() bool {
	switch k {
	case KindText, KindTextarea, KindTel, KindRadio, KindSelect, KindCheckbox:
		return true
	}
	return false
}

// Multi reports whether answers for this kind are ordered lists.
func (k Kind) Multi() bool { return k == KindCheckbox }

// Choice reports whether answers must be one of the declared options.
func (k Kind) Choice() bool {
	return k == KindRadio || k == KindSelect || k == KindCheckbox
}

// FreeText reports whether the answer is typed by the respondent.
func (k Kind) FreeText() bool {
	return k == KindText || k == KindTextarea || k == KindTel
}

// Field declares one question of the survey.
type Field struct {
	Name        string   `yaml:"name" json:"name"`
	Label       string   `yaml:"label" json:"label"`
	Kind        Kind     `yaml:"kind" json:"kind"`
	Section     string   `yaml:"section,omitempty" json:"section,omitempty"`
	Placeholder string   `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Options     []string `yaml:"options,omitempty" json:"options,omitempty"`
}

// Rules are the validation rules applied on top of the field schema.
type Rules struct {
	Required      []string
	MaxTextLength int
	PhoneField    string
	PhonePattern  *regexp.Regexp
}

// DefaultPhonePattern accepts Taiwanese mobile numbers.
var DefaultPhonePattern = regexp.MustCompile(`^09\d{8}$`)

// Schema is a validated, immutable field declaration.
type Schema struct {
	fields   []Field
	index    map[string]int
	required map[string]bool
	rules    Rules
}

// NewSchema checks the declaration and returns a schema. Required names and
// the phone field must refer to declared fields.
func NewSchema(fields []Field, rules Rules) (Schema, error) {
	s := Schema{
		fields:   make([]Field, 0, len(fields)),
		index:    make(map[string]int, len(fields)),
		required: make(map[string]bool, len(rules.Required)),
		rules:    rules,
	}
	for _, f := range fields {
		if f.Name == "" {
			return Schema{}, fmt.Errorf("field with label %q has empty name", f.Label)
		}
		if IsReserved(f.Name) {
			return Schema{}, fmt.Errorf("field name %s is reserved", f.Name)
		}
		if _, dup := s.index[f.Name]; dup {
			return Schema{}, fmt.Errorf("duplicate field %s", f.Name)
		}
		if !f.Kind.valid() {
			return Schema{}, fmt.Errorf("field %s has unknown kind %q", f.Name, f.Kind)
		}
		if f.Kind.Choice() && len(f.Options) == 0 {
			return Schema{}, fmt.Errorf("field %s of kind %s needs options", f.Name, f.Kind)
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	for _, name := range rules.Required {
		if _, ok := s.index[name]; !ok {
			return Schema{}, fmt.Errorf("required field %s is not declared", name)
		}
		s.required[name] = true
	}
	if rules.PhoneField != "" {
		if _, ok := s.index[rules.PhoneField]; !ok {
			return Schema{}, fmt.Errorf("phone field %s is not declared", rules.PhoneField)
		}
	}
	if s.rules.PhonePattern == nil {
		s.rules.PhonePattern = DefaultPhonePattern
	}
	return s, nil
}

// Fields returns the declared fields in order.
func (s Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

func (s Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

func (s Schema) Rules() Rules { return s.rules }

// Required reports whether a field blocks submission when empty. Checkbox
// groups are never required, even when listed.
func (s Schema) Required(name string) bool {
	if !s.required[name] {
		return false
	}
	f, ok := s.Field(name)
	return ok && f.Kind != KindCheckbox
}

// CheckPhone validates raw phone input against the schema's pattern.
func (s Schema) CheckPhone(raw string) (string, bool) {
	return CheckPhone(s.rules.PhonePattern, raw)
}
