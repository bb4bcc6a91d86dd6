// Package controller drives one survey session: host identity, validation,
// the submission lifecycle and the outcome shown to the respondent.
package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"liffsurvey/internal/config"
	"liffsurvey/internal/journal"
	"liffsurvey/internal/liff"
	"liffsurvey/internal/relay"
	"liffsurvey/internal/survey"
)

type State int

const (
	StateInitializing State = iota
	StateReady
	StateSubmitting
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateSubmitting:
		return "submitting"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	ErrNotReady           = errors.New("survey is not ready for submission")
)

// Sender delivers an envelope; *relay.Relay is the production implementation.
type Sender interface {
	Send(ctx context.Context, env survey.Envelope) (relay.Result, error)
}

// Recorder receives every attempt outcome; *journal.Journal implements it.
type Recorder interface {
	Record(ctx context.Context, a journal.Attempt) (journal.Attempt, error)
}

type Options struct {
	Host     liff.Host
	Sender   Sender
	Page     relay.PageContext
	Recorder Recorder
	Logger   *zap.Logger
	Now      func() time.Time
}

// Outcome is what the respondent sees after a submit.
type Outcome struct {
	AttemptID    string
	State        State
	Kind         relay.Kind
	Status       int
	Message      string
	Result       relay.Result
	SubmissionID string
	Report       survey.Report
	Diagnostics  *Diagnostics
	WindowClosed bool
}

type Controller struct {
	cfg    *config.Config
	schema survey.Schema
	host   liff.Host
	sender Sender
	page   relay.PageContext
	rec    Recorder
	log    *zap.Logger
	now    func() time.Time

	mu               sync.Mutex
	state            State
	standalone       bool
	standaloneReason string
	submitter        *survey.Submitter
	last             *Outcome
}

func New(cfg *config.Config, schema survey.Schema, opts Options) (*Controller, error) {
	if cfg == nil {
		return nil, errors.New("controller: config is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("controller: sender is required")
	}
	c := &Controller{
		cfg:    cfg,
		schema: schema,
		host:   opts.Host,
		sender: opts.Sender,
		page:   opts.Page,
		rec:    opts.Recorder,
		log:    opts.Logger,
		now:    opts.Now,
		state:  StateInitializing,
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Initialize resolves the respondent identity. Any host problem degrades to
// standalone mode; the controller always ends up ready.
func (c *Controller) Initialize(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInitializing {
		return
	}
	sub, reason := c.identify(ctx)
	c.submitter = sub
	c.standalone = reason != ""
	c.standaloneReason = reason
	switch {
	case c.standalone:
		c.log.Info("running standalone", zap.String("reason", reason))
	case sub == nil:
		c.log.Info("in client without login; submitting anonymously")
	default:
		c.log.Info("host identity resolved", zap.String("user_id", sub.UserID))
	}
	c.transition(StateReady)
}

func (c *Controller) identify(ctx context.Context) (*survey.Submitter, string) {
	sdk, ok := c.host.SDK()
	if !ok {
		return nil, "host sdk not present"
	}
	if err := sdk.Init(ctx, c.cfg.LIFFID()); err != nil {
		return nil, "host init failed: " + err.Error()
	}
	if !sdk.IsLoggedIn() {
		if sdk.IsInClient() {
			return nil, ""
		}
		return nil, "not in client and not logged in"
	}
	profile, err := sdk.Profile(ctx)
	if err != nil {
		return nil, "profile unavailable: " + err.Error()
	}
	return &survey.Submitter{UserID: profile.UserID, DisplayName: profile.DisplayName}, ""
}

func (c *Controller) transition(to State) {
	if c.state == to {
		return
	}
	c.log.Debug("state change", zap.Stringer("from", c.state), zap.Stringer("to", to))
	c.state = to
}

// Validate reports whether resp may be submitted.
func (c *Controller) Validate(resp survey.Response) survey.Report {
	return c.schema.Validate(resp)
}

// CheckPhone normalizes raw to digits and reports whether it is acceptable.
// It never blocks input.
func (c *Controller) CheckPhone(raw string) (string, bool) {
	return c.schema.CheckPhone(raw)
}

// Submit validates resp, stamps it and hands it to the sender. Only one
// submission runs at a time; a concurrent call gets ErrSubmissionInFlight.
func (c *Controller) Submit(ctx context.Context, resp survey.Response) (Outcome, error) {
	c.mu.Lock()
	switch c.state {
	case StateSubmitting:
		c.mu.Unlock()
		return Outcome{}, ErrSubmissionInFlight
	case StateReady:
	default:
		state := c.state
		c.mu.Unlock()
		return Outcome{}, fmt.Errorf("%w (state %s)", ErrNotReady, state)
	}
	if report := c.schema.Validate(resp); !report.OK() {
		defer c.mu.Unlock()
		err := &relay.Error{Kind: relay.KindValidationFailed, Message: "please complete the required fields", Detail: report.Err().Error()}
		out := Outcome{State: StateReady, Kind: relay.KindValidationFailed, Message: err.Error(), Report: report}
		out.AttemptID = c.record(ctx, "rejected", out, nil)
		return out, err
	}
	c.transition(StateSubmitting)
	submitter := c.submitter
	c.mu.Unlock()

	now := c.now()
	env := survey.NewEnvelope(resp.Stamped(submitter, now, c.cfg.Location()))
	res, err := c.sender.Send(ctx, env)

	c.mu.Lock()
	defer c.mu.Unlock()
	var out Outcome
	if err != nil {
		out = c.failure(err)
		c.transition(StateError)
	} else {
		out = Outcome{State: StateSuccess, Result: res, SubmissionID: submissionID(res.Data), Message: "submitted"}
		c.transition(StateSuccess)
		if sdk, ok := c.host.SDK(); ok && sdk.IsInClient() {
			if cerr := sdk.CloseWindow(); cerr != nil {
				c.log.Warn("close window failed", zap.Error(cerr))
			} else {
				out.WindowClosed = true
			}
		}
	}
	out.AttemptID = c.record(ctx, out.State.String(), out, out.Diagnostics)
	c.last = &out
	return out, err
}

func (c *Controller) failure(err error) Outcome {
	out := Outcome{State: StateError, Kind: relay.KindOf(err), Message: err.Error()}
	detail := err.Error()
	var rerr *relay.Error
	if errors.As(err, &rerr) {
		if rerr.Detail != "" {
			detail = rerr.Detail
		}
		out.Status = rerr.Status
		out.Result = relay.Result{Success: false, Error: rerr.Error()}
	} else {
		out.Message = "submission failed: " + err.Error()
		out.Result = relay.Result{Success: false, Error: err.Error()}
	}
	d := c.diagnostics(detail)
	out.Diagnostics = &d
	c.log.Warn("submission failed", zap.Stringer("kind", out.Kind), zap.Error(err))
	return out
}

func (c *Controller) diagnostics(detail string) Diagnostics {
	d := Diagnostics{
		Time:        c.now(),
		Location:    c.cfg.Location(),
		PageURL:     c.page.URL,
		UpstreamURL: c.cfg.UpstreamURL(),
		Target:      c.cfg.Target(),
		LIFFID:      c.cfg.LIFFID(),
		Detail:      detail,
	}
	if sdk, ok := c.host.SDK(); ok {
		d.SDK = true
		d.InClient = sdk.IsInClient()
		d.LoggedIn = sdk.IsLoggedIn()
	}
	if c.page.Online != nil {
		online := c.page.Online()
		d.Online = &online
	}
	return d
}

// record must be called with c.mu held.
func (c *Controller) record(ctx context.Context, state string, out Outcome, diag *Diagnostics) string {
	if c.rec == nil {
		return ""
	}
	a := journal.Attempt{
		State:        state,
		Status:       out.Status,
		Message:      out.Message,
		Target:       c.cfg.Target(),
		SubmissionID: out.SubmissionID,
		Meta: map[string]any{
			"standalone": c.standalone,
			"simulated":  c.cfg.App.Debug || !c.cfg.HasRealEndpoint(),
		},
	}
	if out.Kind != relay.KindUnknown {
		a.Kind = out.Kind.String()
	}
	if diag != nil {
		a.Diagnostics = diag.String()
	}
	if len(out.Report.Missing) > 0 {
		a.Meta["missing"] = out.Report.Missing
	}
	stored, err := c.rec.Record(context.WithoutCancel(ctx), a)
	if err != nil {
		c.log.Warn("journal write failed", zap.Error(err))
		return ""
	}
	return stored.ID
}

func submissionID(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return ""
	}
	switch v := payload["submissionId"].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Retry clears an error outcome and submits again. There is no backoff.
func (c *Controller) Retry(ctx context.Context, resp survey.Response) (Outcome, error) {
	c.mu.Lock()
	switch c.state {
	case StateSubmitting:
		c.mu.Unlock()
		return Outcome{}, ErrSubmissionInFlight
	case StateError:
		c.transition(StateReady)
	}
	c.mu.Unlock()
	return c.Submit(ctx, resp)
}

// Dismiss closes the outcome message. After a success inside the host client
// the host window is closed as well.
func (c *Controller) Dismiss() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateSuccess:
		c.transition(StateReady)
		if sdk, ok := c.host.SDK(); ok && sdk.IsInClient() {
			if err := sdk.CloseWindow(); err != nil {
				return false, fmt.Errorf("close window: %w", err)
			}
			return true, nil
		}
	case StateError:
		c.transition(StateReady)
	}
	return false, nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Standalone reports whether the session has no host identity, and why.
func (c *Controller) Standalone() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.standalone, c.standaloneReason
}

func (c *Controller) Submitter() (survey.Submitter, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitter == nil {
		return survey.Submitter{}, false
	}
	return *c.submitter, true
}

// Last returns the most recent send outcome.
func (c *Controller) Last() (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Outcome{}, false
	}
	return *c.last, true
}
