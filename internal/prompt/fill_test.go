package prompt_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"liffsurvey/internal/config"
	"liffsurvey/internal/prompt"
)

type stubDriver struct {
	inputs    []string
	textAreas []string
	selectIdx []int
	multiIdx  [][]int
	infos     []string
	selects   []prompt.SelectConfig
	validator map[string]func(string) error
}

func (s *stubDriver) Input(_ context.Context, cfg prompt.InputConfig) (string, error) {
	if len(s.inputs) == 0 {
		return "", errors.New("no input scripted")
	}
	val := s.inputs[0]
	s.inputs = s.inputs[1:]
	if s.validator == nil {
		s.validator = map[string]func(string) error{}
	}
	s.validator[cfg.Message] = cfg.Validator
	return val, nil
}

func (s *stubDriver) TextArea(_ context.Context, _ prompt.InputConfig) (string, error) {
	if len(s.textAreas) == 0 {
		return "", errors.New("no textarea scripted")
	}
	val := s.textAreas[0]
	s.textAreas = s.textAreas[1:]
	return val, nil
}

func (s *stubDriver) Select(_ context.Context, cfg prompt.SelectConfig) (int, error) {
	if len(s.selectIdx) == 0 {
		return -1, errors.New("no select scripted")
	}
	s.selects = append(s.selects, cfg)
	val := s.selectIdx[0]
	s.selectIdx = s.selectIdx[1:]
	return val, nil
}

func (s *stubDriver) MultiSelect(_ context.Context, _ prompt.SelectConfig) ([]int, error) {
	if len(s.multiIdx) == 0 {
		return nil, errors.New("no multiselect scripted")
	}
	val := s.multiIdx[0]
	s.multiIdx = s.multiIdx[1:]
	return val, nil
}

func (s *stubDriver) Confirm(_ context.Context, _ prompt.ConfirmConfig) (bool, error) {
	return true, nil
}

func (s *stubDriver) Info(_ context.Context, msg string) error {
	s.infos = append(s.infos, msg)
	return nil
}

func TestFillDefaultSurvey(t *testing.T) {
	cfg := config.Default()
	schema, err := cfg.Schema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	titles := map[string]string{"basic": "Part 1", "feedback": "Part 4"}
	d := &stubDriver{
		inputs: []string{"0912-345-678"},
		// age, gender, location, purchase_frequency, purchase_time, meal_type, budget (optional: skip)
		selectIdx: []int{2, 1, 0, 2, 0, 0, 0},
		multiIdx:  [][]int{{1, 0}, {}},
		textAreas: []string{"  <b>more</b> rye  "},
	}
	resp, err := prompt.Fill(context.Background(), d, schema, titles)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	got := map[string][]string{}
	for _, name := range resp.Names() {
		got[name] = resp[name].Strings()
	}
	want := map[string][]string{
		"phone_number":       {"0912345678"},
		"age":                {"26-35歲"},
		"gender":             {"女"},
		"location":           {"北部"},
		"purchase_frequency": {"每週1次"},
		"purchase_time":      {"早上"},
		"meal_type":          {"早餐"},
		"bread_types":        {"可頌", "吐司"},
		"suggestions":        {"more rye"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
	if !schema.Validate(resp).OK() {
		t.Fatalf("filled response should validate: %v", schema.Validate(resp).Err())
	}
	if diff := cmp.Diff([]string{"\nPart 1", "\nPart 4"}, d.infos); diff != "" {
		t.Fatalf("section headings (-want +got):\n%s", diff)
	}
	budget := d.selects[len(d.selects)-1]
	if budget.Options[0] != prompt.SkipOption {
		t.Fatalf("optional field should offer skip first: %v", budget.Options)
	}
	if d.selects[0].Options[0] == prompt.SkipOption {
		t.Fatalf("required field must not offer skip")
	}
}

func TestPhoneValidatorRejectsBadNumbers(t *testing.T) {
	cfg := config.Default()
	schema, err := cfg.Schema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	d := &stubDriver{inputs: []string{"0912345678"}}
	// Fill stops at the first select; the phone prompt has been issued by then.
	_, _ = prompt.Fill(context.Background(), d, schema, nil)
	var validate func(string) error
	for _, v := range d.validator {
		validate = v
	}
	if validate == nil {
		t.Fatalf("phone prompt had no validator")
	}
	for _, bad := range []string{"", "12345678", "09123456", "0812345678"} {
		if validate(bad) == nil {
			t.Errorf("%q should be rejected", bad)
		}
	}
	if err := validate("0912 345 678"); err != nil {
		t.Errorf("valid phone rejected: %v", err)
	}
}

func TestFillPropagatesDriverErrors(t *testing.T) {
	cfg := config.Default()
	schema, _ := cfg.Schema()
	_, err := prompt.Fill(context.Background(), &stubDriver{}, schema, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
}
