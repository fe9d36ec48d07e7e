// Package discovery enumerates candidate source objects in bounded batches.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/your-org/assetflow/internal/asset"
	"github.com/your-org/assetflow/pkg/storage/objectstore"
	"github.com/your-org/assetflow/pkg/tracing"
)

// DefaultChunkSize keeps a batch under typical orchestrator payload limits.
const DefaultChunkSize = 2800

// Request constrains which source objects are candidates.
type Request struct {
	Bucket        string `json:"bucket"`
	Prefix        string `json:"prefix"`
	FilenameRegex string `json:"filename_regex,omitempty"`
	Collection    string `json:"collection"`
	Upload        bool   `json:"upload"`
	// StartAfter is the continuation marker returned as Result.NextMarker.
	StartAfter   string `json:"start_after,omitempty"`
	ChunkSize    int    `json:"chunk_size,omitempty"`
	OutputBucket string `json:"bucket_output,omitempty"`
	RoleARN      string `json:"role_arn,omitempty"`
}

// Result echoes the request and carries one batch.
type Result struct {
	Request
	Discovered []asset.Descriptor `json:"discovered"`
	HasMore    bool               `json:"has_more"`
	NextMarker string             `json:"next_marker,omitempty"`
	// Payload is the manifest URI when the batch was offloaded to OutputBucket.
	Payload string `json:"payload,omitempty"`
}

type Params struct {
	// Stores builds the source client (delegated or ambient) and the
	// ambient client used for manifests.
	Stores    asset.StoreFactory
	ChunkSize int
	Logger    *zap.Logger
}

// Service performs read-only listings against the source store.
type Service struct {
	stores    asset.StoreFactory
	chunkSize int
	logger    *zap.Logger
}

// NewService constructs a discovery Service.
func NewService(p Params) *Service {
	chunk := p.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	return &Service{stores: p.Stores, chunkSize: chunk, logger: p.Logger}
}

// Discover lists at most ChunkSize matching objects after StartAfter. creds,
// when non-nil, are used to read the source bucket; the manifest (if any) is
// written with the ambient identity.
func (s *Service) Discover(ctx context.Context, req Request, creds *asset.Credentials) (*Result, error) {
	ctx, span := tracing.Tracer("discovery").Start(ctx, "discovery.Discover")
	defer span.End()
	span.SetAttributes(
		attribute.String("bucket", req.Bucket),
		attribute.String("prefix", req.Prefix),
		attribute.Bool("delegated", creds != nil),
	)

	if req.Bucket == "" {
		return nil, fmt.Errorf("%w: discovery request has no bucket", asset.ErrSchema)
	}
	var pattern *regexp.Regexp
	if req.FilenameRegex != "" {
		re, err := regexp.Compile(req.FilenameRegex)
		if err != nil {
			return nil, fmt.Errorf("%w: filename_regex: %v", asset.ErrSchema, err)
		}
		pattern = re
	}
	if req.ChunkSize <= 0 {
		req.ChunkSize = s.chunkSize
	}

	source, err := s.stores(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("source store: %w", err)
	}
	defer source.Close()

	res := &Result{Request: req, Discovered: make([]asset.Descriptor, 0)}
	err = source.List(ctx, req.Bucket, objectstore.ListOptions{
		Prefix:     req.Prefix,
		StartAfter: req.StartAfter,
	}, func(info objectstore.ObjectInfo) bool {
		if !candidate(info.Key, pattern) {
			return true
		}
		if len(res.Discovered) == req.ChunkSize {
			res.HasMore = true
			return false
		}
		res.Discovered = append(res.Discovered, asset.Descriptor{
			SourceURI:  asset.S3(req.Bucket, info.Key).String(),
			Collection: req.Collection,
			Upload:     req.Upload,
		})
		res.NextMarker = info.Key
		return true
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		s.logger.Error("discovery listing failed",
			zap.String("bucket", req.Bucket),
			zap.String("prefix", req.Prefix),
			zap.Error(err),
		)
		return nil, err
	}
	if !res.HasMore {
		res.NextMarker = ""
	}

	if req.OutputBucket != "" && len(res.Discovered) > 0 {
		uri, err := s.writeManifest(ctx, req, res.Discovered)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		res.Payload = uri
	}

	span.SetAttributes(attribute.Int("discovered", len(res.Discovered)), attribute.Bool("has_more", res.HasMore))
	s.logger.Info("discovered objects",
		zap.String("bucket", req.Bucket),
		zap.String("prefix", req.Prefix),
		zap.Int("count", len(res.Discovered)),
		zap.Bool("has_more", res.HasMore),
	)
	return res, nil
}

// candidate skips directory markers and keys outside the filename pattern.
func candidate(key string, pattern *regexp.Regexp) bool {
	if key == "" || strings.HasSuffix(key, "/") {
		return false
	}
	return pattern == nil || pattern.MatchString(key)
}

func (s *Service) writeManifest(ctx context.Context, req Request, batch []asset.Descriptor) (string, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}

	out, err := s.stores(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("manifest store: %w", err)
	}
	defer out.Close()

	key := path.Join("events", req.Collection, uuid.NewString()+".json")
	if err := out.Put(ctx, req.OutputBucket, key, bytes.NewReader(body), int64(len(body)), objectstore.PutOptions{
		ContentType: "application/json",
	}); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return asset.S3(req.OutputBucket, key).String(), nil
}
