package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"modelgate/internal/auth"
)

// RequestBuilder produces a ready-to-send authenticated upstream
// request. The gateway treats it as an opaque capability; a failure here
// is an auth/config problem and maps to Bad Gateway, never 401: the
// caller's own credentials already passed the inbound gate.
type RequestBuilder interface {
	Build(ctx context.Context, body []byte) (*http.Request, error)
}

// BuildError marks a failure to construct the authenticated upstream
// request, as opposed to a transport failure while sending it.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string { return "auth/config error: " + e.Err.Error() }
func (e *BuildError) Unwrap() error { return e.Err }

// bearerBuilder is the default RequestBuilder: a fixed endpoint with a
// static bearer credential.
type bearerBuilder struct {
	endpoint string
	creds    auth.Credentials
}

func (b *bearerBuilder) Build(ctx context.Context, body []byte) (*http.Request, error) {
	if b.endpoint == "" {
		return nil, fmt.Errorf("no upstream endpoint configured")
	}
	if b.creds.Mode != auth.ModeNone && b.creds.Token == "" {
		return nil, fmt.Errorf("auth mode %q has no credential token", b.creds.Mode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.creds.Token)
	}
	return req, nil
}
