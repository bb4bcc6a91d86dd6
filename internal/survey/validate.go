package survey

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Report is the outcome of validating a response. Submission is allowed iff OK.
type Report struct {
	Missing []string     `json:"missing,omitempty"`
	Invalid []FieldError `json:"invalid,omitempty"`
}

func (r Report) OK() bool { return len(r.Missing) == 0 && len(r.Invalid) == 0 }

// Err returns nil when the report is clean.
func (r Report) Err() error {
	if r.OK() {
		return nil
	}
	var parts []string
	if len(r.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(r.Missing, ", "))
	}
	for _, inv := range r.Invalid {
		parts = append(parts, inv.Error())
	}
	return fmt.Errorf("%s", strings.Join(parts, "; "))
}

// Validate checks required fields, the phone pattern and free-text length.
func (s Schema) Validate(r Response) Report {
	var rep Report
	for _, f := range s.fields {
		v, answered := r[f.Name]
		if s.Required(f.Name) && (!answered || v.Empty()) {
			rep.Missing = append(rep.Missing, f.Name)
			continue
		}
		if !answered {
			continue
		}
		if f.Name == s.rules.PhoneField {
			if digits, ok := s.CheckPhone(v.String()); !ok {
				rep.Invalid = append(rep.Invalid, FieldError{Field: f.Name, Reason: fmt.Sprintf("phone number %s does not match %s", digits, s.rules.PhonePattern)})
				continue
			}
		}
		if f.Kind.FreeText() && s.rules.MaxTextLength > 0 && utf8.RuneCountInString(v.String()) > s.rules.MaxTextLength {
			rep.Invalid = append(rep.Invalid, FieldError{Field: f.Name, Reason: fmt.Sprintf("longer than %d characters", s.rules.MaxTextLength)})
		}
	}
	return rep
}

// NormalizePhone keeps only the digits of raw.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) && r < utf8.RuneSelf {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CheckPhone returns the digits of raw and whether they match pattern. Empty
// input is not flagged; required-ness is checked separately.
func CheckPhone(pattern *regexp.Regexp, raw string) (string, bool) {
	if pattern == nil {
		pattern = DefaultPhonePattern
	}
	digits := NormalizePhone(raw)
	if digits == "" {
		return "", true
	}
	return digits, pattern.MatchString(digits)
}
