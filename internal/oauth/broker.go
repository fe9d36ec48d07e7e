// Package oauth exchanges client credentials for a bearer token.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/your-org/assetflow/internal/asset"
)

// BearerToken authorizes catalog and ledger calls. It is held in memory only.
type BearerToken struct {
	Token     string `json:"access_token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
}

func (t BearerToken) String() string {
	return fmt.Sprintf("BearerToken{type=%s expires_in=%d}", t.TokenType, t.ExpiresIn)
}

// TokenSource exposes t to oauth2-aware HTTP clients.
func (t *BearerToken) TokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: t.Token, TokenType: "bearer"})
}

// TokenError is a non-success response from the token endpoint.
type TokenError struct {
	StatusCode int
	Body       string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.StatusCode, e.Body)
}

// Broker performs client-credentials grants.
type Broker struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewBroker constructs a Broker; a nil httpClient uses http.DefaultClient.
func NewBroker(httpClient *http.Client, logger *zap.Logger) *Broker {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Broker{httpClient: httpClient, logger: logger}
}

// TokenURL is the token endpoint of identityDomain.
func TokenURL(identityDomain string) string {
	return strings.TrimRight(identityDomain, "/") + "/oauth2/token"
}

// Token exchanges clientID/clientSecret for a token scoped to scope, a
// space-separated list, using HTTP basic authentication. It does not retry.
func (b *Broker) Token(ctx context.Context, identityDomain, clientID, clientSecret, scope string) (*BearerToken, error) {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     TokenURL(identityDomain),
		Scopes:       strings.Fields(scope),
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	tok, err := cfg.Token(context.WithValue(ctx, oauth2.HTTPClient, b.httpClient))
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			terr := &TokenError{StatusCode: rerr.Response.StatusCode, Body: string(rerr.Body)}
			b.logger.Error("token exchange rejected",
				zap.String("token_url", cfg.TokenURL),
				zap.Int("status", terr.StatusCode),
				zap.String("body", terr.Body),
			)
			return nil, fmt.Errorf("%w: %w", asset.ErrAuthorization, terr)
		}
		b.logger.Error("token exchange failed", zap.String("token_url", cfg.TokenURL), zap.Error(err))
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: token exchange: %w", asset.ErrTransport, err)
		}
		return nil, fmt.Errorf("%w: token exchange: %w", asset.ErrAuthorization, err)
	}

	out := &BearerToken{Token: tok.AccessToken, TokenType: tok.TokenType}
	if !tok.Expiry.IsZero() {
		out.ExpiresIn = int(time.Until(tok.Expiry).Round(time.Second) / time.Second)
	}
	b.logger.Info("obtained bearer token", zap.String("token_url", cfg.TokenURL), zap.Int("expires_in", out.ExpiresIn))
	return out, nil
}
