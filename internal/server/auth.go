package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/supabase-community/supabase-go"
)

var (
	errMissingCredentials = errors.New("missing credentials")
	errInvalidToken       = errors.New("invalid or expired token")
)

// Authenticator resolves the user a request acts for.
type Authenticator interface {
	Authenticate(r *http.Request) (userID string, err error)
}

// SupabaseAuthenticator validates bearer access tokens with Supabase Auth.
type SupabaseAuthenticator struct {
	client *supabase.Client
}

func NewSupabaseAuthenticator(client *supabase.Client) *SupabaseAuthenticator {
	return &SupabaseAuthenticator{client: client}
}

func (a *SupabaseAuthenticator) Authenticate(r *http.Request) (string, error) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return "", errMissingCredentials
	}
	user, err := a.client.Auth.WithToken(token).GetUser()
	if err != nil || user == nil {
		return "", errInvalidToken
	}
	return user.ID.String(), nil
}

// HeaderAuthenticator trusts the X-User-ID header. Local development only.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if id == "" {
		return "", errMissingCredentials
	}
	return id, nil
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
