package oauth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/assetflow/internal/asset"
)

type tokenRequest struct {
	path        string
	user, pass  string
	contentType string
	form        url.Values
}

func newTokenServer(t *testing.T, status int, body string) (*httptest.Server, *[]tokenRequest) {
	t.Helper()
	var seen []tokenRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		raw, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(raw))
		seen = append(seen, tokenRequest{
			path: r.URL.Path, user: user, pass: pass,
			contentType: r.Header.Get("Content-Type"), form: form,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestToken(t *testing.T) {
	srv, seen := newTokenServer(t, http.StatusOK, `{"access_token":"abc123","token_type":"Bearer","expires_in":3600}`)
	broker := NewBroker(srv.Client(), zaptest.NewLogger(t))

	tok, err := broker.Token(context.Background(), srv.URL+"/", "client", "s3cret", "stac/ingest stac/read")
	require.NoError(t, err)

	assert.Equal(t, "abc123", tok.Token)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.InDelta(t, 3600, tok.ExpiresIn, 5)

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	assert.Equal(t, "/oauth2/token", req.path)
	assert.Equal(t, "client", req.user)
	assert.Equal(t, "s3cret", req.pass)
	assert.Equal(t, "application/x-www-form-urlencoded", req.contentType)
	assert.Equal(t, "client_credentials", req.form.Get("grant_type"))
	assert.Equal(t, "stac/ingest stac/read", req.form.Get("scope"))
	assert.Empty(t, req.form.Get("client_secret"), "secret travels in the basic auth header only")
}

func TestTokenRejected(t *testing.T) {
	srv, seen := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_client"}`)
	broker := NewBroker(srv.Client(), zaptest.NewLogger(t))

	_, err := broker.Token(context.Background(), srv.URL, "client", "wrong", "scope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, asset.ErrAuthorization))

	var terr *TokenError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusBadRequest, terr.StatusCode)
	assert.Contains(t, terr.Body, "invalid_client")
	assert.Len(t, *seen, 1, "no retry")
}

func TestTokenMissingAccessToken(t *testing.T) {
	srv, _ := newTokenServer(t, http.StatusOK, `{"token_type":"Bearer"}`)
	broker := NewBroker(srv.Client(), zaptest.NewLogger(t))

	_, err := broker.Token(context.Background(), srv.URL, "client", "secret", "scope")
	assert.True(t, errors.Is(err, asset.ErrAuthorization))
}

func TestTokenUnreachableIsTransport(t *testing.T) {
	srv, _ := newTokenServer(t, http.StatusOK, `{}`)
	client := srv.Client()
	srv.Close()
	broker := NewBroker(client, zaptest.NewLogger(t))

	_, err := broker.Token(context.Background(), srv.URL, "client", "secret", "scope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, asset.ErrTransport))
	assert.False(t, errors.Is(err, asset.ErrAuthorization))
}

func TestBearerTokenSource(t *testing.T) {
	tok := &BearerToken{Token: "abc123", TokenType: "Bearer", ExpiresIn: 3600}
	got, err := tok.TokenSource().Token()
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.AccessToken)

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	got.SetAuthHeader(req)
	assert.Equal(t, "Bearer abc123", req.Header.Get("Authorization"))
	assert.NotContains(t, tok.String(), "abc123")
}

func TestTokenURL(t *testing.T) {
	assert.Equal(t, "https://auth.example.com/oauth2/token", TokenURL("https://auth.example.com/"))
	assert.Equal(t, "https://auth.example.com/oauth2/token", TokenURL("https://auth.example.com"))
}
