package gauth

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scope covers both BigQuery and GCS.
const Scope = "https://www.googleapis.com/auth/cloud-platform"

// TokenSource yields bearer tokens for Google API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ADC resolves application-default credentials lazily on first use, so a
// process that only ever serves postgres-destined jobs never needs them.
type ADC struct {
	mu sync.Mutex
	ts oauth2.TokenSource
}

func NewADC() *ADC {
	return &ADC{}
}

func (a *ADC) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ts == nil {
		ts, err := google.DefaultTokenSource(ctx, Scope)
		if err != nil {
			return "", fmt.Errorf("failed to resolve default credentials: %w", err)
		}
		a.ts = ts
	}

	token, err := a.ts.Token()
	if err != nil {
		return "", fmt.Errorf("failed to fetch access token: %w", err)
	}
	return token.AccessToken, nil
}

// Static returns the same token on every call. Used for caller-supplied
// bearer credentials and in tests.
type Static string

func (s Static) Token(context.Context) (string, error) {
	return string(s), nil
}
