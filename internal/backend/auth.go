package backend

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// AuthConfig describes the optional service-to-service credentials used when
// the RAG backend sits behind an OAuth2 gateway.
type AuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

func (a AuthConfig) Enabled() bool {
	return a.TokenURL != "" && a.ClientID != ""
}

// NewHTTPClient returns the client used by Transport. With credentials set,
// every request carries a client-credentials bearer token that is refreshed
// on expiry; otherwise it is a plain client with the given timeout.
func NewHTTPClient(ctx context.Context, auth AuthConfig, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	base := &http.Client{Timeout: timeout}
	if !auth.Enabled() {
		return base
	}
	cc := &clientcredentials.Config{
		ClientID:     auth.ClientID,
		ClientSecret: auth.ClientSecret,
		TokenURL:     auth.TokenURL,
		Scopes:       auth.Scopes,
	}
	// token fetches use the same timeout as API calls
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	c := cc.Client(ctx)
	c.Timeout = timeout
	return c
}
