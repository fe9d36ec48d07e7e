package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/assetflow/internal/asset"
	"github.com/your-org/assetflow/internal/discovery"
)

func serve(t *testing.T, f *fixture, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHTTPHandler(f.svc, zaptest.NewLogger(t), 1<<20)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, newFixture(t, Settings{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHTTPDiscover(t *testing.T) {
	f := newFixture(t, Settings{})
	f.store.Seed("src", "in/a.tif", []byte("a"))
	f.store.Seed("src", "in/b.tif", []byte("b"))

	rec := serve(t, f, http.MethodPost, "/v1/discover", `{"bucket":"src","prefix":"in/","collection":"c","upload":true,"chunk_size":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res discovery.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Discovered, 1)
	assert.Equal(t, "s3://src/in/a.tif", res.Discovered[0].SourceURI)
	assert.True(t, res.HasMore)
	assert.Equal(t, "in/a.tif", res.NextMarker)
}

func TestHTTPTransfer(t *testing.T) {
	f := newFixture(t, Settings{TargetBucket: "archive"})
	f.store.Seed("src", "in/a.tif", []byte("a"))

	rec := serve(t, f, http.MethodPost, "/v1/transfer", `[{"s3_filename":"s3://src/in/a.tif","collection":"c","upload":true,"id":"x"}]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out []asset.Descriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "s3://archive/c/a.tif", out[0].SourceURI)
	assert.JSONEq(t, `"x"`, string(out[0].Extra["id"]))
}

func TestHTTPSubmitDryRun(t *testing.T) {
	f := newFixture(t, Settings{})

	rec := serve(t, f, http.MethodPost, "/v1/submit", `{"stac_item":{"id":"item-1","collection":"c"},"dry_run":"yes"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Item   json.RawMessage `json:"item"`
		DryRun bool            `json:"dry_run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.DryRun)
	assert.JSONEq(t, `{"id":"item-1","collection":"c"}`, string(out.Item))
}

func TestHTTPErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		path string
		body string
		want int
	}{
		{"invalid json", "/v1/discover", `{`, http.StatusBadRequest},
		{"missing bucket", "/v1/discover", `{"prefix":"in/"}`, http.StatusBadRequest},
		{"bad regex", "/v1/discover", `{"bucket":"src","filename_regex":"("}`, http.StatusBadRequest},
		{"no item", "/v1/submit", `{"dry_run":true}`, http.StatusBadRequest},
		{"no target bucket", "/v1/transfer", `[{"s3_filename":"s3://src/a.tif","collection":"c","upload":true}]`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(t, newFixture(t, Settings{}), http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestHTTPAuthorizationFailure(t *testing.T) {
	f := newFixture(t, Settings{})
	f.broker.err = fmt.Errorf("%w: denied", asset.ErrAuthorization)

	rec := serve(t, f, http.MethodPost, "/v1/discover", `{"bucket":"src","role_arn":"arn:aws:iam::1:role/read"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHTTPPayloadTooLarge(t *testing.T) {
	f := newFixture(t, Settings{})
	h := NewHTTPHandler(f.svc, zaptest.NewLogger(t), 16)
	body := bytes.NewBufferString(`{"bucket":"src","prefix":"a-rather-long-prefix/"}`)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/discover", body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(fmt.Errorf("x: %w", asset.ErrSchema)))
	assert.Equal(t, http.StatusForbidden, StatusFor(fmt.Errorf("x: %w", asset.ErrAuthorization)))
	assert.Equal(t, http.StatusBadGateway, StatusFor(fmt.Errorf("x: %w", asset.ErrTransport)))
	assert.Equal(t, http.StatusBadGateway, StatusFor(fmt.Errorf("%w: %w", asset.ErrPartialPipeline, asset.ErrAuthorization)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(fmt.Errorf("boom")))
}
