package relay

import (
	"errors"
	"net/http"
	"strings"
)

// Kind is the closed set of submission failure classes.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfigurationMissing
	KindValidationFailed
	KindMixedContentBlocked
	KindOfflineBlocked
	KindTimeout
	KindNetworkUnreachable
	KindHTTPAuth
	KindHTTPNotFound
	KindHTTPRateLimited
	KindHTTPServer
	KindHTTPOther
	KindMalformedUpstreamResponse
	KindUpstreamReportedFailure
)

var kindNames = map[Kind]string{
	KindUnknown:                   "unknown",
	KindConfigurationMissing:      "configuration_missing",
	KindValidationFailed:          "validation_failed",
	KindMixedContentBlocked:       "mixed_content_blocked",
	KindOfflineBlocked:            "offline_blocked",
	KindTimeout:                   "timeout",
	KindNetworkUnreachable:        "network_unreachable",
	KindHTTPAuth:                  "http_auth",
	KindHTTPNotFound:              "http_not_found",
	KindHTTPRateLimited:           "http_rate_limited",
	KindHTTPServer:                "http_server",
	KindHTTPOther:                 "http_other",
	KindMalformedUpstreamResponse: "malformed_upstream_response",
	KindUpstreamReportedFailure:   "upstream_reported_failure",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// HTTP reports whether k is one of the non-2xx buckets.
func (k Kind) HTTP() bool {
	switch k {
	case KindHTTPAuth, KindHTTPNotFound, KindHTTPRateLimited, KindHTTPServer, KindHTTPOther:
		return true
	}
	return false
}

// Hint is the fixed remediation text shown with an error of kind k.
func (k Kind) Hint() string {
	switch k {
	case KindConfigurationMissing:
		return "set upstream.url (or api.base_url) in liffsurvey.yml"
	case KindMixedContentBlocked:
		return "the page is served over https but the endpoint is plain http; use the https web app URL"
	case KindOfflineBlocked:
		return "the device is offline; check the network and try again"
	case KindTimeout:
		return "check the network, the script status, or try again later"
	case KindNetworkUnreachable:
		return "check that the web app is deployed with access set to Anyone, the URL opens in a browser, no corporate proxy blocks it, and the console shows no CORS errors"
	case KindHTTPAuth:
		return "permission denied: set the web app access to Anyone under Deploy > Manage deployments and use the latest /exec URL"
	case KindHTTPNotFound:
		return "web app not found: check the URL and that the path ends in /exec rather than /dev or /usercallback"
	case KindHTTPRateLimited:
		return "too many requests or quota exceeded; try again later"
	case KindHTTPServer:
		return "server error: check the Apps Script execution log"
	case KindHTTPOther:
		return "unexpected HTTP status: check the endpoint URL and the backend logs"
	}
	return ""
}

// ClassifyStatus maps a non-2xx HTTP status to its bucket. Every int maps to
// exactly one HTTP kind.
func ClassifyStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindHTTPAuth
	case code == http.StatusNotFound:
		return KindHTTPNotFound
	case code == http.StatusTooManyRequests:
		return KindHTTPRateLimited
	case code >= 500 && code <= 599:
		return KindHTTPServer
	default:
		return KindHTTPOther
	}
}

// Error is a classified submission failure.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if hint := e.Kind.Hint(); hint != "" {
		b.WriteString(": ")
		b.WriteString(hint)
	}
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return KindUnknown
}
