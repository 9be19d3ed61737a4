// Package credentials provides PerRPCCredentials implementations that attach
// request metadata to every call a Client sends, the way grpc's
// credentials.PerRPCCredentials attaches headers to every RPC.
package credentials

import (
	"github.com/gostdlib/base/context"
)

// PerRPCCredentials supplies metadata attached to every call, and declares
// whether it requires the underlying connection to be transport-secure.
type PerRPCCredentials interface {
	GetRequestMetadata(ctx context.Context, destName string) (map[string]string, error)
	RequireTransportSecurity() bool
}

// TokenCredentials attaches a static token as an "authorization" metadata
// entry.
type TokenCredentials struct {
	token                    string
	requireTransportSecurity bool
}

// NewTokenCredentials returns credentials that attach a static token to each
// call. tokenType is typically "Bearer".
func NewTokenCredentials(tokenType, token string, requireTransportSecurity bool) *TokenCredentials {
	t := token
	if tokenType != "" {
		t = tokenType + " " + token
	}
	return &TokenCredentials{token: t, requireTransportSecurity: requireTransportSecurity}
}

// GetRequestMetadata returns the authorization header metadata.
func (t *TokenCredentials) GetRequestMetadata(ctx context.Context, destName string) (map[string]string, error) {
	return map[string]string{"authorization": t.token}, nil
}

// RequireTransportSecurity reports whether TLS is required.
func (t *TokenCredentials) RequireTransportSecurity() bool { return t.requireTransportSecurity }

// TokenSource supplies tokens dynamically — implementations may refresh or
// fetch from a secrets manager; Token may be called once per call, so
// implementations should cache as needed.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceCredentials attaches a dynamically sourced token.
type TokenSourceCredentials struct {
	source                   TokenSource
	tokenType                string
	requireTransportSecurity bool
}

// NewTokenSourceCredentials returns credentials backed by source.
func NewTokenSourceCredentials(tokenType string, source TokenSource, requireTransportSecurity bool) *TokenSourceCredentials {
	return &TokenSourceCredentials{source: source, tokenType: tokenType, requireTransportSecurity: requireTransportSecurity}
}

// GetRequestMetadata fetches a token and returns authorization metadata.
func (t *TokenSourceCredentials) GetRequestMetadata(ctx context.Context, destName string) (map[string]string, error) {
	token, err := t.source.Token(ctx)
	if err != nil {
		return nil, err
	}
	v := token
	if t.tokenType != "" {
		v = t.tokenType + " " + token
	}
	return map[string]string{"authorization": v}, nil
}

// RequireTransportSecurity reports whether TLS is required.
func (t *TokenSourceCredentials) RequireTransportSecurity() bool { return t.requireTransportSecurity }

// APIKeyCredentials attaches an API key under a caller-chosen header name.
type APIKeyCredentials struct {
	headerName               string
	apiKey                   string
	requireTransportSecurity bool
}

// NewAPIKeyCredentials returns credentials that attach apiKey under
// headerName (e.g. "x-api-key").
func NewAPIKeyCredentials(headerName, apiKey string, requireTransportSecurity bool) *APIKeyCredentials {
	return &APIKeyCredentials{headerName: headerName, apiKey: apiKey, requireTransportSecurity: requireTransportSecurity}
}

// GetRequestMetadata returns the API key header metadata.
func (a *APIKeyCredentials) GetRequestMetadata(ctx context.Context, destName string) (map[string]string, error) {
	return map[string]string{a.headerName: a.apiKey}, nil
}

// RequireTransportSecurity reports whether TLS is required.
func (a *APIKeyCredentials) RequireTransportSecurity() bool { return a.requireTransportSecurity }

// CompositeCredentials merges metadata from several PerRPCCredentials; a
// later credential's keys win on conflict. RequireTransportSecurity is true
// if any component requires it.
type CompositeCredentials struct {
	creds                    []PerRPCCredentials
	requireTransportSecurity bool
}

// NewCompositeCredentials combines creds into one.
func NewCompositeCredentials(creds ...PerRPCCredentials) *CompositeCredentials {
	requireSecurity := false
	for _, c := range creds {
		if c.RequireTransportSecurity() {
			requireSecurity = true
			break
		}
	}
	return &CompositeCredentials{creds: creds, requireTransportSecurity: requireSecurity}
}

// GetRequestMetadata merges metadata from every component credential.
func (c *CompositeCredentials) GetRequestMetadata(ctx context.Context, destName string) (map[string]string, error) {
	result := make(map[string]string)
	for _, cred := range c.creds {
		md, err := cred.GetRequestMetadata(ctx, destName)
		if err != nil {
			return nil, err
		}
		for k, v := range md {
			result[k] = v
		}
	}
	return result, nil
}

// RequireTransportSecurity reports whether any component requires TLS.
func (c *CompositeCredentials) RequireTransportSecurity() bool { return c.requireTransportSecurity }
