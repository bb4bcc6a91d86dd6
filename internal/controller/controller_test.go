package controller_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"liffsurvey/internal/config"
	"liffsurvey/internal/controller"
	"liffsurvey/internal/journal"
	"liffsurvey/internal/liff"
	"liffsurvey/internal/relay"
	"liffsurvey/internal/survey"
)

var fixedNow = time.Date(2025, 3, 7, 6, 5, 9, 0, time.UTC)

type fakeSDK struct {
	initErr      error
	inClient     bool
	loggedIn     bool
	profile      liff.Profile
	profileErr   error
	profileCalls int
	closed       int
}

func (f *fakeSDK) Init(ctx context.Context, appID string) error { return f.initErr }
func (f *fakeSDK) IsInClient() bool { return f.inClient }
func (f *fakeSDK) IsLoggedIn() bool { return f.loggedIn }
func (f *fakeSDK) Profile(ctx context.Context) (liff.Profile, error) {
	f.profileCalls++
	return f.profile, f.profileErr
}
func (f *fakeSDK) CloseWindow() error {
	f.closed++
	return nil
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []survey.Envelope
	errs    []error
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeSender) Send(ctx context.Context, env survey.Envelope) (relay.Result, error) {
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return relay.Result{}, err
		}
	}
	return relay.Result{Success: true, Data: json.RawMessage(`{"submissionId":1741327509000}`)}, nil
}

type memRecorder struct {
	attempts []journal.Attempt
}

func (m *memRecorder) Record(ctx context.Context, a journal.Attempt) (journal.Attempt, error) {
	a.ID = "attempt-" + string(rune('a'+len(m.attempts)))
	m.attempts = append(m.attempts, a)
	return a, nil
}

func completeResponse() survey.Response {
	return survey.Response{
		"phone_number":       survey.Single("0912345678"),
		"age":                survey.Single("26-35歲"),
		"gender":             survey.Single("女"),
		"location":           survey.Single("北部"),
		"purchase_frequency": survey.Single("每週1次"),
		"purchase_time":      survey.Single("早上"),
		"meal_type":          survey.Single("早餐"),
		"bread_types":        survey.Multi("可頌", "吐司"),
	}
}

func newController(t *testing.T, host liff.Host, sender controller.Sender, rec controller.Recorder) *controller.Controller {
	t.Helper()
	cfg := config.Default()
	cfg.Upstream.URL = "https://script.google.com/macros/s/abc/exec"
	schema, err := cfg.Schema()
	require.NoError(t, err)
	opts := controller.Options{
		Host:   host,
		Sender: sender,
		Page:   relay.PageContext{URL: "https://liff.line.me/2007891693-KAARXOLV"},
		Now:    func() time.Time { return fixedNow },
	}
	opts.Recorder = rec
	c, err := controller.New(cfg, schema, opts)
	require.NoError(t, err)
	return c
}

func TestInitializeFallsBackToStandalone(t *testing.T) {
	cases := map[string]liff.Host{
		"absent":       liff.Absent(),
		"init fails":   liff.Present(&fakeSDK{initErr: errors.New("boom")}),
		"outside":      liff.Present(&fakeSDK{}),
		"profile fail": liff.Present(&fakeSDK{inClient: true, loggedIn: true, profileErr: errors.New("denied")}),
	}
	for name, host := range cases {
		t.Run(name, func(t *testing.T) {
			c := newController(t, host, &fakeSender{}, nil)
			require.Equal(t, controller.StateInitializing, c.State())
			c.Initialize(context.Background())
			require.Equal(t, controller.StateReady, c.State())
			standalone, reason := c.Standalone()
			require.True(t, standalone)
			require.NotEmpty(t, reason)
			_, ok := c.Submitter()
			require.False(t, ok)
		})
	}
}

func TestInClientWithoutLoginSkipsProfile(t *testing.T) {
	sdk := &fakeSDK{inClient: true, profileErr: liff.ErrNotLoggedIn}
	sender := &fakeSender{}
	c := newController(t, liff.Present(sdk), sender, nil)
	c.Initialize(context.Background())
	require.Equal(t, controller.StateReady, c.State())
	standalone, reason := c.Standalone()
	require.False(t, standalone, reason)
	require.Zero(t, sdk.profileCalls)
	_, ok := c.Submitter()
	require.False(t, ok)

	out, err := c.Submit(context.Background(), completeResponse())
	require.NoError(t, err)
	require.True(t, out.WindowClosed)
	require.Len(t, sender.sent, 1)
	_, stamped := sender.sent[0].Data[survey.KeyUserID]
	require.False(t, stamped)
}

func TestSubmitStampsIdentityAndClosesWindow(t *testing.T) {
	sdk := &fakeSDK{inClient: true, loggedIn: true, profile: liff.Profile{UserID: "U1", DisplayName: "小明"}}
	sender := &fakeSender{}
	rec := &memRecorder{}
	c := newController(t, liff.Present(sdk), sender, rec)
	c.Initialize(context.Background())
	standalone, _ := c.Standalone()
	require.False(t, standalone)

	out, err := c.Submit(context.Background(), completeResponse())
	require.NoError(t, err)
	require.Equal(t, controller.StateSuccess, out.State)
	require.Equal(t, "1741327509000", out.SubmissionID)
	require.True(t, out.WindowClosed)
	require.Equal(t, 1, sdk.closed)
	require.Equal(t, controller.StateSuccess, c.State())

	require.Len(t, sender.sent, 1)
	data := sender.sent[0].Data
	require.Equal(t, survey.ActionSubmit, sender.sent[0].Action)
	require.Equal(t, "U1", data[survey.KeyUserID].String())
	require.Equal(t, "小明", data[survey.KeyUserName].String())
	require.Equal(t, "2025-03-07T06:05:09.000Z", data[survey.KeyTimestamp].String())
	require.Equal(t, "2025/3/7 下午2:05:09", data[survey.KeySubmissionDate].String())
	require.Equal(t, []string{"可頌", "吐司"}, data["bread_types"].Strings())

	require.Len(t, rec.attempts, 1)
	require.Equal(t, "success", rec.attempts[0].State)
	require.Equal(t, out.AttemptID, rec.attempts[0].ID)
	require.NotContains(t, rec.attempts[0].Message, "0912345678")

	closed, err := c.Dismiss()
	require.NoError(t, err)
	require.True(t, closed)
	require.Equal(t, 2, sdk.closed)
	require.Equal(t, controller.StateReady, c.State())
}

func TestSubmitRejectsIncompleteResponse(t *testing.T) {
	sender := &fakeSender{}
	rec := &memRecorder{}
	c := newController(t, liff.Absent(), sender, rec)
	c.Initialize(context.Background())

	resp := completeResponse()
	delete(resp, "gender")
	resp["phone_number"] = survey.Single("0812345678")
	out, err := c.Submit(context.Background(), resp)
	require.Error(t, err)
	require.Equal(t, relay.KindValidationFailed, relay.KindOf(err))
	require.Equal(t, []string{"gender"}, out.Report.Missing)
	require.Len(t, out.Report.Invalid, 1)
	require.Equal(t, "phone_number", out.Report.Invalid[0].Field)
	require.Empty(t, sender.sent)
	require.Equal(t, controller.StateReady, c.State())
	require.Len(t, rec.attempts, 1)
	require.Equal(t, "rejected", rec.attempts[0].State)
}

func TestSubmitBeforeInitialize(t *testing.T) {
	c := newController(t, liff.Absent(), &fakeSender{}, nil)
	_, err := c.Submit(context.Background(), completeResponse())
	require.ErrorIs(t, err, controller.ErrNotReady)
}

func TestConcurrentSubmitIsRejected(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{}), entered: make(chan struct{})}
	c := newController(t, liff.Absent(), sender, nil)
	c.Initialize(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), completeResponse())
		done <- err
	}()
	<-sender.entered
	require.Equal(t, controller.StateSubmitting, c.State())

	_, err := c.Submit(context.Background(), completeResponse())
	require.ErrorIs(t, err, controller.ErrSubmissionInFlight)
	_, err = c.Retry(context.Background(), completeResponse())
	require.ErrorIs(t, err, controller.ErrSubmissionInFlight)

	close(sender.block)
	require.NoError(t, <-done)
	require.Equal(t, controller.StateSuccess, c.State())
}

func TestErrorCarriesDiagnosticsAndRetrySucceeds(t *testing.T) {
	sender := &fakeSender{errs: []error{&relay.Error{Kind: relay.KindHTTPNotFound, Status: 404, Message: "HTTP 404 Not Found", Detail: "not found"}}}
	rec := &memRecorder{}
	c := newController(t, liff.Absent(), sender, rec)
	c.Initialize(context.Background())

	out, err := c.Submit(context.Background(), completeResponse())
	require.Error(t, err)
	require.Equal(t, controller.StateError, out.State)
	require.Equal(t, relay.KindHTTPNotFound, out.Kind)
	require.Equal(t, 404, out.Status)
	require.Contains(t, out.Message, "/exec")
	require.NotNil(t, out.Diagnostics)

	diag := out.Diagnostics.String()
	require.Contains(t, diag, "[time] 2025/3/7 下午2:05:09")
	require.Contains(t, diag, "inClient=no-sdk loggedIn=no-sdk")
	require.Contains(t, diag, "online=n/a")
	require.Contains(t, diag, "[upstream] https://script.google.com/macros/s/abc/exec")
	require.Contains(t, diag, "[liff_id] (not set)")
	require.Contains(t, diag, "[detail] not found")

	last, ok := c.Last()
	require.True(t, ok)
	require.Equal(t, out.AttemptID, last.AttemptID)

	_, err = c.Submit(context.Background(), completeResponse())
	require.ErrorIs(t, err, controller.ErrNotReady)

	out, err = c.Retry(context.Background(), completeResponse())
	require.NoError(t, err)
	require.Equal(t, controller.StateSuccess, out.State)
	require.False(t, out.WindowClosed)

	require.Len(t, rec.attempts, 2)
	require.Equal(t, "error", rec.attempts[0].State)
	require.Equal(t, "http_not_found", rec.attempts[0].Kind)
	require.Equal(t, 404, rec.attempts[0].Status)
	require.True(t, strings.HasPrefix(rec.attempts[0].Diagnostics, "[time]"))
}

func TestCheckPhone(t *testing.T) {
	c := newController(t, liff.Absent(), &fakeSender{}, nil)
	digits, ok := c.CheckPhone("0912-345-678")
	require.True(t, ok)
	require.Equal(t, "0912345678", digits)
	_, ok = c.CheckPhone("09123456")
	require.False(t, ok)
}
