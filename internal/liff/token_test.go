package liff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"liffsurvey/internal/liff"
)

const (
	testChannel = "1657000000"
	testSecret  = "channel-secret"
)

var testNow = time.Date(2025, 3, 7, 6, 0, 0, 0, time.UTC)

func signToken(t *testing.T, secret string, claims liff.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func validClaims() liff.Claims {
	return liff.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    liff.Issuer,
			Subject:   "U1234567890abcdef",
			Audience:  jwt.ClaimStrings{testChannel},
			IssuedAt:  jwt.NewNumericDate(testNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
		Name: "小明",
	}
}

func newSDK(token string) *liff.TokenSDK {
	return &liff.TokenSDK{
		ChannelID:     testChannel,
		ChannelSecret: testSecret,
		IDToken:       token,
		InClient:      true,
		Now:           func() time.Time { return testNow },
	}
}

func TestTokenSDKProfile(t *testing.T) {
	sdk := newSDK(signToken(t, testSecret, validClaims()))
	ctx := context.Background()
	if err := sdk.Init(ctx, "2007891693-KAARXOLV"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !sdk.IsLoggedIn() {
		t.Fatalf("expected logged in")
	}
	profile, err := sdk.Profile(ctx)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.UserID != "U1234567890abcdef" || profile.DisplayName != "小明" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestTokenSDKRejectsBadTokens(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(testNow.Add(-time.Second))
	wrongAud := validClaims()
	wrongAud.Audience = jwt.ClaimStrings{"someone-else"}
	wrongIss := validClaims()
	wrongIss.Issuer = "https://evil.example"
	noExp := validClaims()
	noExp.ExpiresAt = nil

	cases := map[string]string{
		"expired":      signToken(t, testSecret, expired),
		"audience":     signToken(t, testSecret, wrongAud),
		"issuer":       signToken(t, testSecret, wrongIss),
		"no expiry":    signToken(t, testSecret, noExp),
		"wrong secret": signToken(t, "other", validClaims()),
		"garbage":      "not.a.jwt",
	}
	for name, token := range cases {
		sdk := newSDK(token)
		if err := sdk.Init(context.Background(), "app"); err == nil {
			t.Errorf("%s: expected init error", name)
		}
		if sdk.IsLoggedIn() {
			t.Errorf("%s: should not be logged in", name)
		}
	}
}

func TestTokenSDKWithoutTokenIsLoggedOut(t *testing.T) {
	sdk := newSDK("")
	if err := sdk.Init(context.Background(), "app"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if sdk.IsLoggedIn() {
		t.Fatalf("expected logged out")
	}
	if _, err := sdk.Profile(context.Background()); !errors.Is(err, liff.ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if err := sdk.Init(context.Background(), " "); !errors.Is(err, liff.ErrNoAppID) {
		t.Fatalf("expected ErrNoAppID, got %v", err)
	}
}

func TestCloseWindow(t *testing.T) {
	sdk := newSDK("")
	if err := sdk.CloseWindow(); !errors.Is(err, liff.ErrNotInitiated) {
		t.Fatalf("expected ErrNotInitiated, got %v", err)
	}
	if err := sdk.Init(context.Background(), "app"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := sdk.CloseWindow(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !sdk.Closed() {
		t.Fatalf("expected closed")
	}
}

func TestHost(t *testing.T) {
	if _, ok := liff.Absent().SDK(); ok {
		t.Fatalf("absent host reported an sdk")
	}
	if _, ok := liff.Present(nil).SDK(); ok {
		t.Fatalf("nil sdk should be absent")
	}
	if _, ok := liff.Present(newSDK("")).SDK(); !ok {
		t.Fatalf("present host lost its sdk")
	}
}

func TestResolveAppID(t *testing.T) {
	if got := liff.ResolveAppID("", "your-liff-id-here", " abc "); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if got := liff.ResolveAppID("", "your-liff-id-here"); got != "" {
		t.Fatalf("got %q", got)
	}
}
