package liff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the iss claim of LINE-issued ID tokens.
const Issuer = "https://access.line.me"

// Claims are the ID token claims the survey reads.
type Claims struct {
	jwt.RegisteredClaims
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// TokenSDK implements SDK from a LIFF ID token handed over by the page. The
// token is an HS256 JWT signed with the channel secret.
type TokenSDK struct {
	ChannelID     string
	ChannelSecret string
	IDToken       string
	InClient      bool
	Now           func() time.Time

	mu     sync.Mutex
	inited bool
	claims *Claims
	closed bool
}

// Init verifies the ID token, if any. A missing token leaves the user logged
// out; a bad token is an error.
func (s *TokenSDK) Init(ctx context.Context, appID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(appID) == "" {
		return ErrNoAppID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inited = true
	s.claims = nil
	token := strings.TrimSpace(s.IDToken)
	if token == "" {
		return nil
	}
	claims, err := s.verify(token)
	if err != nil {
		return fmt.Errorf("liff: verify id token: %w", err)
	}
	s.claims = claims
	return nil
}

func (s *TokenSDK) verify(token string) (*Claims, error) {
	if strings.TrimSpace(s.ChannelSecret) == "" {
		return nil, errors.New("channel secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	}
	if s.ChannelID != "" {
		opts = append(opts, jwt.WithAudience(s.ChannelID))
	}
	if s.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(s.Now))
	}
	claims := &Claims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.ChannelSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("subject claim required")
	}
	return claims, nil
}

func (s *TokenSDK) IsInClient() bool { return s.InClient }

func (s *TokenSDK) IsLoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims != nil
}

func (s *TokenSDK) Profile(ctx context.Context) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inited {
		return Profile{}, ErrNotInitiated
	}
	if s.claims == nil {
		return Profile{}, ErrNotLoggedIn
	}
	return Profile{
		UserID:      s.claims.Subject,
		DisplayName: s.claims.Name,
		PictureURL:  s.claims.Picture,
	}, nil
}

// CloseWindow records the request; the page closes itself when Closed is true.
func (s *TokenSDK) CloseWindow() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inited {
		return ErrNotInitiated
	}
	s.closed = true
	return nil
}

func (s *TokenSDK) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ResolveAppID returns the first candidate that is set and not the placeholder.
func ResolveAppID(candidates ...string) string {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c != "" && c != "your-liff-id-here" {
			return c
		}
	}
	return ""
}
