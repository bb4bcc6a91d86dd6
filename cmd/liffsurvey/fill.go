package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"liffsurvey/internal/config"
	"liffsurvey/internal/controller"
	"liffsurvey/internal/journal"
	"liffsurvey/internal/liff"
	"liffsurvey/internal/prompt"
	"liffsurvey/internal/relay"
	"liffsurvey/internal/survey"
)

func fillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Answer the survey interactively and submit it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd.Context(), func(ctx context.Context, s *session) error {
				if err := s.intro(); err != nil {
					return err
				}
				d := prompt.NewSurveyDriver(os.Stdout)
				resp, err := prompt.Fill(ctx, d, s.schema, sectionTitles(s.cfg))
				if err != nil {
					return err
				}
				ok, err := d.Confirm(ctx, prompt.ConfirmConfig{Message: "Submit your answers?", Default: true})
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println(s.styles.muted.Render("not submitted"))
					return nil
				}
				out, err := s.ctrl.Submit(ctx, resp)
				for err != nil && out.State == controller.StateError {
					s.report(out)
					again, cerr := d.Confirm(ctx, prompt.ConfirmConfig{Message: "Try again?", Default: true})
					if cerr != nil || !again {
						return err
					}
					out, err = s.ctrl.Retry(ctx, resp)
				}
				return s.finish(out, err)
			})
		},
	}
	return cmd
}

func submitCmd() *cobra.Command {
	var answers string
	var set []string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit answers from a JSON file or name=value pairs",
		Example: `  liffsurvey submit --answers answers.json
  liffsurvey submit --set phone_number=0912345678 --set age=18-25歲 --set bread_types=吐司 --set bread_types=可頌`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if answers == "" && len(set) == 0 {
				return fmt.Errorf("--answers or --set required")
			}
			return withController(cmd.Context(), func(ctx context.Context, s *session) error {
				resp, err := readAnswers(s.schema, answers, set)
				if err != nil {
					return err
				}
				out, err := s.ctrl.Submit(ctx, resp)
				if err != nil && out.State == controller.StateError && !viper.GetBool("json") {
					s.report(out)
				}
				return s.finish(out, err)
			})
		},
	}
	cmd.Flags().StringVar(&answers, "answers", "", "answers as a JSON object, a file path, or - for stdin")
	cmd.Flags().StringArrayVar(&set, "set", nil, "answer as name=value (repeat for multiple selections)")
	return cmd
}

// session bundles what one fill or submit run needs.
type session struct {
	cfg    *config.Config
	schema survey.Schema
	ctrl   *controller.Controller
	styles styles
	log    *zap.Logger
}

func withController(ctx context.Context, fn func(context.Context, *session) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	schema, err := cfg.Schema()
	if err != nil {
		return err
	}
	page := relay.PageContext{URL: viper.GetString("page-url")}
	if page.URL == "" {
		page.URL = cfg.LIFF.URL
	}
	opts := controller.Options{
		Host:   newHost(cfg),
		Sender: relay.New(cfg, relay.Options{Page: page, Logger: logger.Named("relay")}),
		Page:   page,
		Logger: logger.Named("controller"),
	}
	j, err := journal.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		logger.Warn("attempt journal unavailable", zap.Error(err))
	} else {
		defer j.Close()
		opts.Recorder = j
	}
	ctrl, err := controller.New(cfg, schema, opts)
	if err != nil {
		return err
	}
	ctrl.Initialize(ctx)
	s := &session{cfg: cfg, schema: schema, ctrl: ctrl, styles: newStyles(cfg.Styles), log: logger}
	if standalone, reason := ctrl.Standalone(); standalone && !viper.GetBool("json") {
		fmt.Println(s.styles.muted.Render("standalone mode: " + reason))
	}
	return fn(ctx, s)
}

// newHost returns a present host when the run carries an ID token or claims
// to be inside the client; otherwise the session is standalone.
func newHost(cfg *config.Config) liff.Host {
	token := viper.GetString("id-token")
	inClient := viper.GetBool("in-client")
	if token == "" && !inClient {
		return liff.Absent()
	}
	secret := viper.GetString("channel-secret")
	if secret == "" {
		secret = cfg.LIFF.ChannelSecret
	}
	return liff.Present(&liff.TokenSDK{
		ChannelID:     cfg.LIFF.ChannelID,
		ChannelSecret: secret,
		IDToken:       token,
		InClient:      inClient,
	})
}

func sectionTitles(cfg *config.Config) map[string]string {
	titles := make(map[string]string, len(cfg.Survey.Sections))
	for _, sec := range cfg.Survey.Sections {
		titles[sec.ID] = sec.Title
	}
	return titles
}

func readAnswers(schema survey.Schema, answers string, set []string) (survey.Response, error) {
	resp := survey.Response{}
	if answers != "" {
		data, err := answerBytes(answers)
		if err != nil {
			return nil, err
		}
		if resp, err = schema.DecodeAnswers(data); err != nil {
			return nil, err
		}
	}
	if len(set) == 0 {
		return resp, nil
	}
	values := url.Values{}
	for _, kv := range set {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("--set %q: expected name=value", kv)
		}
		values.Add(strings.TrimSpace(name), value)
	}
	collected, err := schema.Collect(values)
	if err != nil {
		return nil, err
	}
	for name, v := range collected {
		resp[name] = v
	}
	return resp, nil
}

func answerBytes(arg string) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(os.Stdin)
	case strings.HasPrefix(strings.TrimSpace(arg), "{"):
		return []byte(arg), nil
	default:
		return os.ReadFile(arg)
	}
}

func (s *session) intro() error {
	md := "# " + s.cfg.Survey.Title + "\n\n" + s.cfg.Survey.Description
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return err
	}
	out, err := r.Render(md)
	if err != nil {
		return err
	}
	fmt.Print(out)
	if sub, ok := s.ctrl.Submitter(); ok {
		fmt.Println(s.styles.muted.Render("answering as " + sub.DisplayName))
	}
	return nil
}

// report prints a failed outcome with its diagnostics.
func (s *session) report(out controller.Outcome) {
	fmt.Println(s.styles.failure.Render("✗ " + out.Message))
	if hint := out.Kind.Hint(); hint != "" && !strings.Contains(out.Message, hint) {
		fmt.Println(s.styles.muted.Render(hint))
	}
	if out.Diagnostics == nil {
		return
	}
	if viper.GetBool("verbose") {
		fmt.Println(s.styles.muted.Render(out.Diagnostics.String()))
		return
	}
	fmt.Println(s.styles.muted.Render(out.Diagnostics.Summary()))
}

// finish prints the final outcome and dismisses it.
func (s *session) finish(out controller.Outcome, err error) error {
	if viper.GetBool("json") {
		if perr := printJSON(outcomeJSON(out)); perr != nil {
			return perr
		}
		return err
	}
	if err != nil {
		if relay.KindOf(err) == relay.KindValidationFailed {
			fmt.Println(s.styles.failure.Render("✗ " + out.Message))
			return errors.New("answers incomplete")
		}
		return err
	}
	line := "✓ " + out.Message
	if out.SubmissionID != "" {
		line += " (submission " + out.SubmissionID + ")"
	}
	fmt.Println(s.styles.success.Render(line))
	if out.WindowClosed {
		return nil
	}
	closed, derr := s.ctrl.Dismiss()
	if derr != nil {
		s.log.Warn("dismiss failed", zap.Error(derr))
	} else if closed {
		s.log.Debug("host window closed")
	}
	return nil
}

func outcomeJSON(out controller.Outcome) map[string]any {
	m := map[string]any{
		"attempt_id": out.AttemptID,
		"state":      out.State.String(),
		"message":    out.Message,
		"result":     out.Result,
	}
	if out.Kind != relay.KindUnknown {
		m["kind"] = out.Kind.String()
	}
	if out.Status != 0 {
		m["status"] = out.Status
	}
	if out.SubmissionID != "" {
		m["submission_id"] = out.SubmissionID
	}
	if len(out.Report.Missing) > 0 || len(out.Report.Invalid) > 0 {
		m["report"] = out.Report
	}
	if out.Diagnostics != nil {
		m["diagnostics"] = out.Diagnostics.String()
	}
	return m
}

type styles struct {
	success, failure, muted lipgloss.Style
}

func newStyles(c config.Styles) styles {
	color := func(v, fallback string) lipgloss.Color {
		if v == "" {
			return lipgloss.Color(fallback)
		}
		return lipgloss.Color(v)
	}
	return styles{
		success: lipgloss.NewStyle().Bold(true).Foreground(color(c.SuccessColor, "#28A745")),
		failure: lipgloss.NewStyle().Bold(true).Foreground(color(c.ErrorColor, "#DC3545")),
		muted:   lipgloss.NewStyle().Foreground(color(c.SecondaryColor, "#6C757D")),
	}
}
