// Package auth implements bearer-token authentication for the daemon API.
// Tokens are static configuration; there is no issuance or rotation surface.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// Scope names one grant on the API. The resource set is closed: workspace
// lifecycle and the change-event stream.
type Scope string

const (
	// ScopeAll grants everything. Assigned implicitly to the legacy api_key.
	ScopeAll Scope = "*"

	ScopeWorkspacesRO Scope = "workspaces:ro"
	ScopeWorkspacesRW Scope = "workspaces:rw"
	ScopeEventsRO     Scope = "events:ro"
	ScopeEventsRW     Scope = "events:rw"
)

// readScopeFor maps each write scope to the read scope it implies.
var readScopeFor = map[Scope]Scope{
	ScopeWorkspacesRW: ScopeWorkspacesRO,
	ScopeEventsRW:     ScopeEventsRO,
}

// KnownScope reports whether s is a recognized scope name. Config validation
// and doctor use it to reject typos before the daemon starts.
func KnownScope(s string) bool {
	switch Scope(s) {
	case ScopeAll, ScopeWorkspacesRO, ScopeWorkspacesRW, ScopeEventsRO, ScopeEventsRW:
		return true
	}
	return false
}

// TokenConfig is one configured bearer token with its scope names.
type TokenConfig struct {
	Token  string
	Scopes []string
}

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	Token  string
	Scopes map[Scope]struct{}
}

// HasAny reports whether the principal holds at least one of the required
// scopes. No required scopes means allow; ScopeAll always passes.
func (p Principal) HasAny(required ...Scope) bool {
	if len(required) == 0 {
		return true
	}
	if _, ok := p.Scopes[ScopeAll]; ok {
		return true
	}
	for _, s := range required {
		if _, ok := p.Scopes[s]; ok {
			return true
		}
	}
	return false
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// ExtractBearerToken pulls the token out of the Authorization header.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("invalid Authorization header format")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// Verifier matches presented tokens against the configured set. Built once
// at startup; scope normalization happens here, not per request.
type Verifier struct {
	legacyKey string
	tokens    []verifierEntry
}

type verifierEntry struct {
	token  string
	scopes map[Scope]struct{}
}

// NewVerifier builds a verifier. legacyKey may be empty; when set, a caller
// presenting it authenticates with ScopeAll.
func NewVerifier(legacyKey string, tokens []TokenConfig) *Verifier {
	v := &Verifier{legacyKey: legacyKey}
	for _, t := range tokens {
		v.tokens = append(v.tokens, verifierEntry{
			token:  t.Token,
			scopes: normalizeScopes(t.Scopes),
		})
	}
	return v
}

// Verify authenticates a presented token. Comparison is constant-time per
// candidate token.
func (v *Verifier) Verify(presented string) (Principal, bool) {
	if constantTimeEqual(presented, v.legacyKey) {
		return Principal{
			Token:  presented,
			Scopes: map[Scope]struct{}{ScopeAll: {}},
		}, true
	}

	for _, entry := range v.tokens {
		if constantTimeEqual(presented, entry.token) {
			return Principal{Token: presented, Scopes: entry.scopes}, true
		}
	}
	return Principal{}, false
}

func normalizeScopes(scopes []string) map[Scope]struct{} {
	out := make(map[Scope]struct{}, len(scopes))
	for _, raw := range scopes {
		s := Scope(strings.TrimSpace(raw))
		if s == "" {
			continue
		}
		out[s] = struct{}{}
		// Write implies read.
		if ro, ok := readScopeFor[s]; ok {
			out[ro] = struct{}{}
		}
	}
	return out
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
