package controller

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"liffsurvey/internal/survey"
)

const notSet = "(not set)"

// Diagnostics is the troubleshooting block shown next to a failed submission.
// It stays local and is never sent upstream.
type Diagnostics struct {
	Time        time.Time
	Location    *time.Location
	SDK         bool
	InClient    bool
	LoggedIn    bool
	Online      *bool
	PageURL     string
	UpstreamURL string
	Target      string
	LIFFID      string
	Detail      string
}

func (d Diagnostics) String() string {
	lines := []string{
		"[time] " + survey.LocalizedTime(d.Time, d.Location),
		"[liff] " + d.hostFlags(),
		"[network] online=" + d.online(),
		"[page] " + orNotSet(d.PageURL),
		"[upstream] " + orNotSet(d.UpstreamURL),
	}
	if d.Target != "" && d.Target != d.UpstreamURL {
		lines = append(lines, "[target] "+d.Target)
	}
	lines = append(lines, "[liff_id] "+orNotSet(d.LIFFID))
	if d.Detail != "" {
		lines = append(lines, "[detail] "+d.Detail)
	}
	return strings.Join(lines, "\n")
}

// Summary is the single-line form used outside verbose mode.
func (d Diagnostics) Summary() string {
	return fmt.Sprintf("%s online=%s target=%s", d.hostFlags(), d.online(), orNotSet(d.Target))
}

func (d Diagnostics) hostFlags() string {
	if !d.SDK {
		return "inClient=no-sdk loggedIn=no-sdk"
	}
	return "inClient=" + strconv.FormatBool(d.InClient) + " loggedIn=" + strconv.FormatBool(d.LoggedIn)
}

func (d Diagnostics) online() string {
	if d.Online == nil {
		return "n/a"
	}
	return strconv.FormatBool(*d.Online)
}

func orNotSet(s string) string {
	if strings.TrimSpace(s) == "" {
		return notSet
	}
	return s
}
