// Package submission resolves catalog items and submits them to the catalog
// ingestion API, forwarding a provenance record to the ledger when the
// archived asset location is known.
package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/your-org/assetflow/internal/asset"
	"github.com/your-org/assetflow/internal/catalog"
	"github.com/your-org/assetflow/internal/events"
	"github.com/your-org/assetflow/internal/oauth"
	"github.com/your-org/assetflow/internal/secrets"
	"github.com/your-org/assetflow/pkg/tracing"
)

// maxItemBytes caps a referenced item body.
const maxItemBytes = 32 << 20

// AppConfigSource yields the identity-provider application configuration.
type AppConfigSource interface {
	AppConfig(ctx context.Context, secretID string) (*secrets.AppConfig, error)
}

// TokenIssuer exchanges client credentials for a bearer token.
type TokenIssuer interface {
	Token(ctx context.Context, identityDomain, clientID, clientSecret, scope string) (*oauth.BearerToken, error)
}

// APIError is a non-success response from the catalog or ledger.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("POST %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Outcome reports what a submission did.
type Outcome struct {
	Item       json.RawMessage `json:"item"`
	DryRun     bool            `json:"dry_run"`
	Catalog    json.RawMessage `json:"catalog_response,omitempty"`
	Provenance json.RawMessage `json:"provenance_response,omitempty"`
}

type Params struct {
	Stores     asset.StoreFactory
	Secrets    AppConfigSource
	Tokens     TokenIssuer
	SecretID   string
	CatalogURL string
	LedgerURL  string
	HTTPClient *http.Client
	Emitter    *events.Emitter
	Logger     *zap.Logger
}

// Submitter authenticates at most once and reuses the token for every
// submission it performs. Build a new Submitter per invocation; tokens are
// never refreshed.
type Submitter struct {
	stores     asset.StoreFactory
	secrets    AppConfigSource
	tokens     TokenIssuer
	secretID   string
	catalogURL string
	ledgerURL  string
	httpClient *http.Client
	emitter    *events.Emitter
	logger     *zap.Logger

	mu     sync.Mutex
	client *http.Client
}

// New constructs a Submitter.
func New(p Params) *Submitter {
	httpClient := p.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	emitter := p.Emitter
	if emitter == nil {
		emitter = events.NewEmitter(nil)
	}
	return &Submitter{
		stores:     p.Stores,
		secrets:    p.Secrets,
		tokens:     p.Tokens,
		secretID:   p.SecretID,
		catalogURL: p.CatalogURL,
		ledgerURL:  p.LedgerURL,
		httpClient: httpClient,
		emitter:    emitter,
		logger:     p.Logger,
	}
}

// Submit runs resolve, then either reports a dry run or authenticates,
// submits the item and, when req.DestinationURI is set, the provenance
// record. The catalog submission is not rolled back if provenance fails.
func (s *Submitter) Submit(ctx context.Context, req Request) (*Outcome, error) {
	ctx, span := tracing.Tracer("submission").Start(ctx, "submission.Submit")
	defer span.End()

	item, err := s.resolve(ctx, req.Source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		return nil, err
	}
	summary, err := catalog.Summarize(item)
	if err != nil {
		s.logger.Debug("item summary unavailable", zap.Error(err))
	}
	span.SetAttributes(
		attribute.String("item_id", summary.ID),
		attribute.String("collection", summary.Collection),
		attribute.Bool("dry_run", req.DryRun),
	)
	log := s.logger.With(
		zap.String("item_id", summary.ID),
		zap.String("collection", summary.Collection),
		zap.Strings("producers", summary.ProvidersWith(catalog.RoleProducer)),
		zap.Strings("hosts", summary.ProvidersWith(catalog.RoleHost)),
	)

	if req.DryRun {
		log.Info("dry run, not inserting, would have inserted", zap.Reflect("item", item))
		return &Outcome{Item: item, DryRun: true}, nil
	}

	client, err := s.authenticate(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authenticate failed")
		return nil, err
	}

	catalogResp, err := s.post(ctx, client, joinURL(s.catalogURL, "ingestions"), item)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog submission failed")
		log.Error("catalog submission failed", zap.Error(err))
		return nil, err
	}
	log.Info("submitted catalog item")
	out := &Outcome{Item: item, Catalog: catalogResp}

	if err := s.emitter.CatalogSubmitted(ctx, events.CatalogSubmitted{
		ItemID:         summary.ID,
		Collection:     summary.Collection,
		DestinationURI: req.DestinationURI,
	}); err != nil {
		return nil, fmt.Errorf("%w: catalog accepted item %q: %w", asset.ErrPartialPipeline, summary.ID, err)
	}

	if req.DestinationURI == "" {
		return out, nil
	}

	record := NewProvenanceRecord(req.DestinationURI, req.Citations)
	body, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal provenance record: %w", err)
	}
	provResp, err := s.post(ctx, client, joinURL(s.ledgerURL, "metadata/s3"), body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provenance submission failed")
		log.Error("provenance submission failed after catalog accepted the item",
			zap.String("s3uri", record.S3URI),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: catalog accepted item %q but provenance for %s failed: %w",
			asset.ErrPartialPipeline, summary.ID, record.S3URI, err)
	}
	log.Info("submitted provenance record", zap.String("s3uri", record.S3URI))
	out.Provenance = provResp
	return out, nil
}

func (s *Submitter) resolve(ctx context.Context, source ItemSource) (json.RawMessage, error) {
	switch src := source.(type) {
	case InlineItem:
		return objectBody(src.Item)
	case ItemReference:
		return s.fetch(ctx, src.URI)
	case nil:
		return nil, fmt.Errorf("%w: no stac_item or stac_file_url provided", asset.ErrSchema)
	default:
		return nil, fmt.Errorf("%w: unsupported item source %T", asset.ErrSchema, source)
	}
}

func (s *Submitter) fetch(ctx context.Context, uri asset.URI) (json.RawMessage, error) {
	store, err := s.stores(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("item store: %w", err)
	}
	defer store.Close()

	body, err := store.Get(ctx, uri.Bucket, uri.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", asset.ErrTransport, uri, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, maxItemBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", asset.ErrTransport, uri, err)
	}
	if len(raw) > maxItemBytes {
		return nil, fmt.Errorf("%w: item at %s exceeds %d bytes", asset.ErrSchema, uri, maxItemBytes)
	}
	item, err := objectBody(raw)
	if err != nil {
		return nil, fmt.Errorf("item at %s: %w", uri, err)
	}
	return item, nil
}

// authenticate returns the bearer-authorized client, obtaining the token on
// first use.
func (s *Submitter) authenticate(ctx context.Context) (*http.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	app, err := s.secrets.AppConfig(ctx, s.secretID)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.Token(ctx, app.CognitoDomain, app.ClientID, app.ClientSecret, app.Scope)
	if err != nil {
		return nil, err
	}

	s.client = oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, s.httpClient), token.TokenSource())
	return s.client, nil
}

func (s *Submitter) post(ctx context.Context, client *http.Client, endpoint string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request for %s: %v", asset.ErrSchema, endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: POST %s: %w", asset.ErrTransport, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response from %s: %w", asset.ErrTransport, endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(respBody)}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("%w: %w", asset.ErrAuthorization, apiErr)
		}
		return nil, fmt.Errorf("%w: %w", asset.ErrTransport, apiErr)
	}
	if !json.Valid(respBody) {
		return nil, nil
	}
	return respBody, nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + path
}
