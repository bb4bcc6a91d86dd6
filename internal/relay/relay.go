// Package relay delivers a survey envelope to the proxy or the spreadsheet
// script and classifies every way that can go wrong.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"liffsurvey/internal/config"
	"liffsurvey/internal/survey"
)

const (
	// FormField is the multipart field the spreadsheet script reads.
	FormField = "data"

	snippetLimit  = 200
	maxReplyBytes = 1 << 20
)

// Result mirrors the upstream reply contract.
type Result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// PageContext describes the page the submission originates from.
type PageContext struct {
	URL    string
	Online func() bool
}

// Secure reports whether the page itself was loaded over https.
func (p PageContext) Secure() bool {
	u, err := url.Parse(p.URL)
	return err == nil && strings.EqualFold(u.Scheme, "https")
}

// Offline is true only when the page positively knows it has no network.
func (p PageContext) Offline() bool {
	return p.Online != nil && !p.Online()
}

type Options struct {
	HTTPClient *http.Client
	Page       PageContext
	Logger     *zap.Logger
	// Timeout overrides api.timeout_seconds.
	Timeout time.Duration
	Now     func() time.Time
}

// Relay posts envelopes to the configured target.
type Relay struct {
	cfg     *config.Config
	client  *http.Client
	page    PageContext
	log     *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

func New(cfg *config.Config, opts Options) *Relay {
	r := &Relay{
		cfg:     cfg,
		client:  opts.HTTPClient,
		page:    opts.Page,
		log:     opts.Logger,
		timeout: opts.Timeout,
		now:     opts.Now,
	}
	if r.client == nil {
		r.client = &http.Client{}
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.timeout <= 0 {
		r.timeout = cfg.Timeout()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Page returns the page context the relay checks before sending.
func (r *Relay) Page() PageContext { return r.page }

// Send delivers env. In debug mode, or when no endpoint is configured, it
// returns a simulated success without touching the network.
func (r *Relay) Send(ctx context.Context, env survey.Envelope) (Result, error) {
	if r.cfg.App.Debug || !r.cfg.HasRealEndpoint() {
		return r.simulated()
	}
	target := r.cfg.Target()
	if r.page.Secure() && strings.HasPrefix(strings.ToLower(target), "http://") {
		return Result{}, &Error{Kind: KindMixedContentBlocked, Message: "blocked by the browser as mixed content"}
	}
	if r.page.Offline() {
		return Result{}, &Error{Kind: KindOfflineBlocked, Message: "offline"}
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return Result{}, fmt.Errorf("encode envelope: %w", err)
	}
	body, contentType, err := r.encode(payload)
	if err != nil {
		return Result{}, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, target, body)
	if err != nil {
		return Result{}, &Error{Kind: KindConfigurationMissing, Message: "invalid submission target", Detail: target, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := r.now()
	resp, err := r.client.Do(req)
	if err != nil {
		rerr := r.transportError(ctx, err)
		r.log.Warn("submission failed", zap.String("target", target), zap.Stringer("kind", KindOf(rerr)), zap.Error(err))
		return Result{}, rerr
	}
	defer resp.Body.Close()
	reply, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		rerr := r.transportError(ctx, err)
		r.log.Warn("submission reply unreadable", zap.String("target", target), zap.Error(err))
		return Result{}, rerr
	}

	res, rerr := interpret(resp.StatusCode, reply)
	fields := []zap.Field{
		zap.String("target", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", r.now().Sub(start)),
	}
	if rerr != nil {
		r.log.Warn("submission rejected", append(fields, zap.Stringer("kind", rerr.Kind))...)
		return Result{}, rerr
	}
	r.log.Info("submission accepted", fields...)
	return res, nil
}

// encode picks the wire format: the proxy takes the JSON as text/plain, the
// script takes a multipart form with a single data field.
func (r *Relay) encode(payload []byte) (io.Reader, string, error) {
	if r.cfg.UsesProxy() {
		return bytes.NewReader(payload), "text/plain;charset=utf-8", nil
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField(FormField, string(payload)); err != nil {
		return nil, "", fmt.Errorf("encode form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("encode form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func (r *Relay) transportError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("submission cancelled: %w", parent.Err())
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		secs := strconv.FormatFloat(r.timeout.Seconds(), 'f', -1, 64)
		return &Error{Kind: KindTimeout, Message: fmt.Sprintf("connection timed out (>%ss)", secs), Err: err}
	}
	return &Error{Kind: KindNetworkUnreachable, Message: "connection failed", Detail: err.Error(), Err: err}
}

func interpret(status int, reply []byte) (Result, *Error) {
	if status < 200 || status > 299 {
		kind := ClassifyStatus(status)
		msg := fmt.Sprintf("HTTP %d", status)
		if text := http.StatusText(status); text != "" {
			msg += " " + text
		}
		detail := backendError(reply)
		if detail == "" && kind == KindHTTPOther {
			detail = "unknown error"
		}
		return Result{}, &Error{Kind: kind, Status: status, Message: msg, Detail: detail}
	}
	if !json.Valid(reply) {
		return Result{}, &Error{
			Kind:    KindMalformedUpstreamResponse,
			Status:  status,
			Message: "response is not JSON",
			Detail:  Snippet(reply),
		}
	}
	var wire struct {
		Success any             `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   any             `json:"error"`
	}
	if err := json.Unmarshal(reply, &wire); err == nil && wire.Success == true {
		return Result{Success: true, Data: wire.Data}, nil
	}
	msg := backendError(reply)
	if msg == "" {
		msg = "the server reported a failure; try again later"
	}
	return Result{}, &Error{Kind: KindUpstreamReportedFailure, Status: status, Message: msg}
}

// backendError extracts the "error" member of a JSON reply, falling back to
// the trimmed raw text for non-JSON replies.
func backendError(reply []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(reply, &obj); err == nil {
		switch v := obj["error"].(type) {
		case nil:
			return ""
		case string:
			return v
		default:
			b, _ := json.Marshal(v)
			return string(b)
		}
	}
	if json.Valid(reply) {
		return ""
	}
	return strings.TrimSpace(string(reply))
}

// Snippet returns at most the first 200 characters of b.
func Snippet(b []byte) string {
	s := string(b)
	if utf8.RuneCountInString(s) <= snippetLimit {
		return s
	}
	n := 0
	for i := range s {
		if n == snippetLimit {
			return s[:i]
		}
		n++
	}
	return s
}

func (r *Relay) simulated() (Result, error) {
	now := r.now()
	data, err := json.Marshal(struct {
		Message      string `json:"message"`
		SubmissionID int64  `json:"submissionId"`
		Timestamp    string `json:"timestamp"`
	}{
		Message:      "debug mode: submission simulated",
		SubmissionID: now.UnixMilli(),
		Timestamp:    now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return Result{}, err
	}
	r.log.Info("submission simulated", zap.Bool("debug", r.cfg.App.Debug))
	return Result{Success: true, Data: data}, nil
}
