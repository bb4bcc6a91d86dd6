package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"liffsurvey/internal/survey"
)

// SkipOption is offered first for optional single-choice fields.
const SkipOption = "(skip)"

// Fill asks every schema field in order and returns the normalized response.
// titles maps section ids to headings printed when the section changes.
func Fill(ctx context.Context, d Driver, schema survey.Schema, titles map[string]string) (survey.Response, error) {
	raw := survey.Response{}
	section := ""
	for _, f := range schema.Fields() {
		if f.Section != section {
			section = f.Section
			if title := titles[section]; title != "" {
				if err := d.Info(ctx, "\n"+title); err != nil {
					return nil, err
				}
			}
		}
		v, err := ask(ctx, d, schema, f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		if !v.Empty() {
			raw[f.Name] = v
		}
	}
	return schema.Normalize(raw)
}

func ask(ctx context.Context, d Driver, schema survey.Schema, f survey.Field) (survey.Value, error) {
	required := schema.Required(f.Name)
	msg := f.Label
	if msg == "" {
		msg = f.Name
	}
	if required {
		msg += " *"
	}
	switch f.Kind {
	case survey.KindRadio, survey.KindSelect:
		options := f.Options
		if !required {
			options = append([]string{SkipOption}, f.Options...)
		}
		idx, err := d.Select(ctx, SelectConfig{Message: msg, Options: options, Help: f.Placeholder})
		if err != nil {
			return survey.Value{}, err
		}
		if idx < 0 || idx >= len(options) {
			return survey.Value{}, fmt.Errorf("selection %d out of range", idx)
		}
		if !required && idx == 0 {
			return survey.Value{}, nil
		}
		return survey.Single(options[idx]), nil
	case survey.KindCheckbox:
		idx, err := d.MultiSelect(ctx, SelectConfig{Message: msg, Options: f.Options, Help: f.Placeholder})
		if err != nil {
			return survey.Value{}, err
		}
		picked := make([]string, 0, len(idx))
		for _, i := range idx {
			if i < 0 || i >= len(f.Options) {
				return survey.Value{}, fmt.Errorf("selection %d out of range", i)
			}
			picked = append(picked, f.Options[i])
		}
		if len(picked) == 0 {
			return survey.Value{}, nil
		}
		return survey.Multi(picked...), nil
	case survey.KindTextarea:
		s, err := d.TextArea(ctx, InputConfig{Message: msg, Help: f.Placeholder, Validator: textValidator(schema, f, required)})
		if err != nil {
			return survey.Value{}, err
		}
		return survey.Single(s), nil
	default:
		s, err := d.Input(ctx, InputConfig{Message: msg, Help: f.Placeholder, Validator: textValidator(schema, f, required)})
		if err != nil {
			return survey.Value{}, err
		}
		if f.Name == schema.Rules().PhoneField {
			if digits, _ := schema.CheckPhone(s); digits != "" {
				s = digits
			}
		}
		return survey.Single(s), nil
	}
}

func textValidator(schema survey.Schema, f survey.Field, required bool) func(string) error {
	rules := schema.Rules()
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			if required {
				return errors.New("this field is required")
			}
			return nil
		}
		if f.Name == rules.PhoneField {
			if digits, ok := schema.CheckPhone(s); !ok {
				return fmt.Errorf("phone number %s does not match %s", digits, schema.Rules().PhonePattern)
			}
		}
		if f.Kind.FreeText() && rules.MaxTextLength > 0 && utf8.RuneCountInString(s) > rules.MaxTextLength {
			return fmt.Errorf("at most %d characters", rules.MaxTextLength)
		}
		return nil
	}
}
