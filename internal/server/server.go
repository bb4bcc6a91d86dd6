// Package server is the forwarding proxy between the survey page and the
// spreadsheet script.
package server

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"liffsurvey/internal/config"
	"liffsurvey/internal/relay"
)

// MaxBodyBytes bounds accepted submissions.
const MaxBodyBytes = 1 << 20

type Options struct {
	HTTPClient *http.Client
	Logger     *zap.Logger
	Now        func() time.Time
}

// New returns the proxy handler: origin policy, /health and the survey route.
func New(cfg *config.Config, opts Options) (http.Handler, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	// Framework errors (oversized body, unreadable request) share the
	// {success:false,error} envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newErrorBody(status, joinErrors(msg, errs))
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return newErrorBody(status, joinErrors(msg, errs))
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(log))
	router.Use(middleware.Recoverer)
	router.Use(originPolicy(cfg.Proxy.AllowedOrigins, log))

	name := cfg.App.Name
	if name == "" {
		name = "liffsurvey"
	}
	hcfg := huma.DefaultConfig(name+" proxy", versionOr(cfg.App.Version))
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	// No $schema link in bodies: every error stays {success,error}.
	hcfg.CreateHooks = nil
	api := humachi.New(router, hcfg)

	fw := &forwarder{
		url:     cfg.UpstreamURL(),
		client:  client,
		timeout: cfg.UpstreamTimeout(),
		log:     log.Named("upstream"),
	}
	registerHealth(api, now)
	registerSurvey(api, fw)
	registerOpenAPI(router, api)
	return router, nil
}

func versionOr(v string) string {
	if strings.TrimSpace(v) == "" {
		return "0.0.0"
	}
	return v
}

func joinErrors(msg string, errs []error) string {
	parts := []string{msg}
	for _, err := range errs {
		if err != nil {
			parts = append(parts, err.Error())
		}
	}
	return strings.Join(parts, ": ")
}

func registerHealth(api huma.API, now func() time.Time) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		return &healthOutput{Body: map[string]any{
			"ok":        true,
			"timestamp": now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		}}, nil
	})
}

func registerSurvey(api huma.API, fw *forwarder) {
	huma.Register(api, huma.Operation{
		OperationID:  "forward-survey",
		Method:       http.MethodPost,
		Path:         config.SurveyPath,
		Summary:      "Forward a survey submission",
		Description:  "Accepts the submission envelope as application/json or text/plain and relays it to the spreadsheet script. The upstream status and JSON body are mirrored.",
		MaxBodyBytes: MaxBodyBytes,
		// The body is opaque bytes; content type and JSON are checked below.
		SkipValidateBody: true,
	}, func(ctx context.Context, in *surveyInput) (*surveyOutput, error) {
		if fw.url == "" {
			return failure(newErrorBody(http.StatusInternalServerError, "upstream URL is not configured (set LIFFSURVEY_UPSTREAM_URL or GAS_URL)")), nil
		}
		if !acceptedType(in.ContentType) {
			return failure(newErrorBody(http.StatusUnsupportedMediaType, "content type must be application/json or text/plain")), nil
		}
		if !json.Valid(in.RawBody) {
			return failure(newErrorBody(http.StatusBadRequest, "request body is not valid JSON")), nil
		}
		status, body, err := fw.forward(ctx, in.RawBody)
		if err != nil {
			return failure(newErrorBody(http.StatusInternalServerError, err.Error())), nil
		}
		if !json.Valid(body) {
			return failure(newErrorBody(http.StatusBadGateway, "upstream returned non-JSON: "+relay.Snippet(body))), nil
		}
		return &surveyOutput{Status: status, ContentType: "application/json", Body: body}, nil
	})
}

func acceptedType(header string) bool {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return mt == "application/json" || mt == "text/plain"
}

func failure(e *errorBody) *surveyOutput {
	body, _ := json.Marshal(e)
	return &surveyOutput{Status: e.status, ContentType: "application/json", Body: body}
}

func registerOpenAPI(r chi.Router, api huma.API) {
	var (
		once sync.Once
		doc  []byte
	)
	r.Get("/openapi.json", func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil || oas.Components == nil || oas.Components.Schemas == nil {
		return
	}
	ref := oas.Components.Schemas.Schema(reflect.TypeOf(errorBody{}), true, "SubmissionError")
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Post} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {Schema: ref},
				},
			}
		}
	}
}
