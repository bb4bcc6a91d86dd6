package survey

import (
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// Keys added to a response at submission time. They never appear in a schema.
const (
	KeyUserID         = "userId"
	KeyUserName       = "userName"
	KeyTimestamp      = "timestamp"
	KeySubmissionDate = "submissionDate"
)

// ActionSubmit is the envelope action understood by the spreadsheet script.
const ActionSubmit = "submitSurvey"

func IsReserved(name string) bool {
	switch name {
	case KeyUserID, KeyUserName, KeyTimestamp, KeySubmissionDate:
		return true
	}
	return false
}

// Response maps field names to answers.
type Response map[string]Value

// Clone returns a shallow copy; Values are immutable so this is sufficient.
func (r Response) Clone() Response {
	out := make(Response, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Names returns the answered field names in sorted order.
func (r Response) Names() []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Submitter identifies the respondent when the host app provides a profile.
type Submitter struct {
	UserID      string
	DisplayName string
}

// Stamped returns a copy carrying the submitter identity and both timestamps.
func (r Response) Stamped(sub *Submitter, now time.Time, loc *time.Location) Response {
	out := r.Clone()
	if sub != nil {
		out[KeyUserID] = Single(sub.UserID)
		out[KeyUserName] = Single(sub.DisplayName)
	}
	out[KeyTimestamp] = Single(now.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	out[KeySubmissionDate] = Single(LocalizedTime(now, loc))
	return out
}

// LocalizedTime renders t as the zh-TW locale does, e.g. "2025/3/7 下午2:05:09".
func LocalizedTime(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	marker := "上午"
	if t.Hour() >= 12 {
		marker = "下午"
	}
	hour := t.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%d/%d/%d %s%d:%02d:%02d", t.Year(), int(t.Month()), t.Day(), marker, hour, t.Minute(), t.Second())
}

// Envelope is the wire contract of the spreadsheet endpoint.
type Envelope struct {
	Action string   `json:"action"`
	Data   Response `json:"data"`
}

func NewEnvelope(r Response) Envelope {
	return Envelope{Action: ActionSubmit, Data: r}
}

// DecodeEnvelope parses an envelope; the action must be ActionSubmit.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Action != ActionSubmit {
		return Envelope{}, fmt.Errorf("unexpected envelope action %q", env.Action)
	}
	return env, nil
}

// FieldError names one rejected answer.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) Error() string { return e.Field + ": " + e.Reason }

// CollectError lists every answer rejected at the collection boundary.
type CollectError struct {
	Problems []FieldError
}

func (e *CollectError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Error())
	}
	return "invalid answers: " + strings.Join(parts, "; ")
}

// Collect builds a response from form-style values, where repeated keys
// carry the selections of a multi-select field in order.
func (s Schema) Collect(values url.Values) (Response, error) {
	raw := make(Response, len(values))
	for name, list := range values {
		f, ok := s.Field(name)
		if ok && !f.Kind.Multi() && len(list) == 1 {
			raw[name] = Single(list[0])
			continue
		}
		raw[name] = Multi(list...)
	}
	return s.Normalize(raw)
}

// DecodeAnswers parses a JSON object of answers and normalizes it.
func (s Schema) DecodeAnswers(data []byte) (Response, error) {
	var raw Response
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	return s.Normalize(raw)
}

// Normalize checks every key against the schema: unknown or reserved names,
// multiple answers for a single-value field and values outside a field's
// options are rejected. Free text is trimmed and stripped of markup; blank
// answers are dropped.
func (s Schema) Normalize(in Response) (Response, error) {
	out := make(Response, len(in))
	var problems []FieldError
	for _, name := range in.Names() {
		v := in[name]
		if IsReserved(name) {
			problems = append(problems, FieldError{Field: name, Reason: "reserved name"})
			continue
		}
		f, ok := s.Field(name)
		if !ok {
			problems = append(problems, FieldError{Field: name, Reason: "unknown field"})
			continue
		}
		values := v.Strings()
		if f.Kind.FreeText() {
			for i := range values {
				values[i] = SanitizeText(values[i])
			}
		}
		values = dropBlank(values)
		if name == s.rules.PhoneField && len(values) == 1 {
			if digits := NormalizePhone(values[0]); digits != "" {
				values[0] = digits
			}
		}
		if f.Kind.Choice() {
			if bad := firstNotIn(values, f.Options); bad != "" {
				problems = append(problems, FieldError{Field: name, Reason: fmt.Sprintf("%q is not an option", bad)})
				continue
			}
		}
		if f.Kind.Multi() {
			if len(values) > 0 {
				out[name] = Multi(values...)
			}
			continue
		}
		switch len(values) {
		case 0:
		case 1:
			out[name] = Single(values[0])
		default:
			problems = append(problems, FieldError{Field: name, Reason: "expects a single value"})
		}
	}
	if len(problems) > 0 {
		return nil, &CollectError{Problems: problems}
	}
	return out, nil
}

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
	markupTag      = regexp.MustCompile(`<[A-Za-z!/?][^<>]*>`)
)

// SanitizeText trims s and removes markup. Text without anything shaped like
// a tag is returned as typed, so "a<b" or "&lt;" survive literally. Entities
// in stripped text are decoded only when that cannot reintroduce a tag.
func SanitizeText(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || !markupTag.MatchString(trimmed) {
		return trimmed
	}
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	out := textPolicy.Sanitize(trimmed)
	if plain := html.UnescapeString(out); !markupTag.MatchString(plain) {
		out = plain
	}
	return strings.TrimSpace(out)
}

func dropBlank(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func firstNotIn(values, options []string) string {
	for _, v := range values {
		found := false
		for _, o := range options {
			if v == o {
				found = true
				break
			}
		}
		if !found {
			return v
		}
	}
	return ""
}
