// Package liff models the messaging app's in-app browser SDK as an optional
// capability the controller can be given.
package liff

import (
	"context"
	"errors"
)

// Profile is the subset of the host user profile the survey records.
type Profile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	PictureURL  string `json:"pictureUrl,omitempty"`
}

// SDK is the host capability surface.
type SDK interface {
	Init(ctx context.Context, appID string) error
	IsInClient() bool
	IsLoggedIn() bool
	Profile(ctx context.Context) (Profile, error)
	CloseWindow() error
}

var (
	ErrNoAppID      = errors.New("liff: app id not configured")
	ErrNotLoggedIn  = errors.New("liff: user is not logged in")
	ErrNotInitiated = errors.New("liff: sdk not initialized")
)

// Host is either a present SDK or an explicit absence. The zero value is absent.
type Host struct {
	sdk SDK
}

// Absent is the host of a page running outside the messaging app with no SDK.
func Absent() Host { return Host{} }

// Present wraps sdk; a nil sdk yields Absent.
func Present(sdk SDK) Host { return Host{sdk: sdk} }

// SDK returns the capability and whether it is present.
func (h Host) SDK() (SDK, bool) {
	return h.sdk, h.sdk != nil
}
