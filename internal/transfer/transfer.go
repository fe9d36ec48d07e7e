// Package transfer copies assets into the archive bucket idempotently.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/assetflow/internal/asset"
	"github.com/your-org/assetflow/internal/events"
	"github.com/your-org/assetflow/pkg/storage/objectstore"
	"github.com/your-org/assetflow/pkg/tracing"
)

// Error reports a failed transfer with enough context to diagnose it.
type Error struct {
	Op          string
	Source      string
	Destination string
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transfer %s -> %s: %s: %v", e.Source, e.Destination, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Params struct {
	Stores  asset.StoreFactory
	Emitter *events.Emitter
	Logger  *zap.Logger
	// ScratchDir hosts per-transfer temporary directories; empty means os.TempDir.
	ScratchDir string
	// Concurrency bounds TransferBatch fan-out; values below 1 mean sequential.
	Concurrency int
}

// Service streams objects from a source bucket into the archive bucket.
type Service struct {
	stores      asset.StoreFactory
	emitter     *events.Emitter
	logger      *zap.Logger
	scratchDir  string
	concurrency int
}

// NewService constructs a transfer Service.
func NewService(p Params) *Service {
	concurrency := p.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	emitter := p.Emitter
	if emitter == nil {
		emitter = events.NewEmitter(nil)
	}
	return &Service{
		stores:      p.Stores,
		emitter:     emitter,
		logger:      p.Logger,
		scratchDir:  p.ScratchDir,
		concurrency: concurrency,
	}
}

// stores pairs the clients for one processing unit.
type stores struct {
	source      objectstore.Client
	destination objectstore.Client
}

func (s *Service) open(ctx context.Context, creds *asset.Credentials) (*stores, error) {
	source, err := s.stores(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("source store: %w", err)
	}
	destination, err := s.stores(ctx, creds)
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("destination store: %w", err)
	}
	return &stores{source: source, destination: destination}, nil
}

func (st *stores) Close() {
	st.source.Close()
	st.destination.Close()
}

// Transfer copies d into bucket unless it is already there, and returns d
// rewritten to the archive location. Descriptors that do not request an
// upload are returned unchanged without touching any store. creds, when
// non-nil, authorize the destination writes.
func (s *Service) Transfer(ctx context.Context, d asset.Descriptor, bucket string, creds *asset.Credentials) (asset.Descriptor, error) {
	if !d.Upload {
		return d, nil
	}
	st, err := s.open(ctx, creds)
	if err != nil {
		return d, err
	}
	defer st.Close()
	return s.transfer(ctx, st, d, bucket)
}

// TransferBatch transfers every descriptor of batch, preserving order. The
// first failure cancels the remaining work and is returned; no partial batch
// is ever returned alongside an error.
func (s *Service) TransferBatch(ctx context.Context, batch []asset.Descriptor, bucket string, creds *asset.Credentials) ([]asset.Descriptor, error) {
	out := make([]asset.Descriptor, len(batch))
	copy(out, batch)
	if !anyUpload(batch) {
		return out, nil
	}

	st, err := s.open(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, d := range batch {
		if !d.Upload {
			continue
		}
		g.Go(func() error {
			moved, err := s.transfer(gctx, st, d, bucket)
			if err != nil {
				return err
			}
			out[i] = moved
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func anyUpload(batch []asset.Descriptor) bool {
	for _, d := range batch {
		if d.Upload {
			return true
		}
	}
	return false
}

func (s *Service) transfer(ctx context.Context, st *stores, d asset.Descriptor, bucket string) (asset.Descriptor, error) {
	ctx, span := tracing.Tracer("transfer").Start(ctx, "transfer.Transfer")
	defer span.End()

	src, err := d.Location()
	if err != nil {
		return d, err
	}
	dst, err := d.Destination(bucket)
	if err != nil {
		return d, err
	}
	span.SetAttributes(
		attribute.String("source", src.String()),
		attribute.String("destination", dst.String()),
	)
	log := s.logger.With(zap.String("source", src.String()), zap.String("destination", dst.String()))

	existence, err := st.destination.Stat(ctx, dst.Bucket, dst.Key)
	if err != nil {
		terr := &Error{Op: "check destination", Source: src.String(), Destination: dst.String(), Err: fmt.Errorf("%w: %w", asset.ErrTransport, err)}
		span.RecordError(terr)
		span.SetStatus(codes.Error, terr.Op)
		log.Error("existence check failed", zap.Error(err))
		return d, terr
	}

	copied := false
	if existence == objectstore.Found {
		log.Info("destination exists, skipping copy")
	} else {
		copied, err = s.copyObject(ctx, st, src, dst, log)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "copy failed")
			return d, err
		}
	}
	span.SetAttributes(attribute.Bool("copied", copied))

	if err := s.emitter.AssetTransferred(ctx, events.AssetTransferred{
		Collection:  d.Collection,
		Source:      src.String(),
		Destination: dst.String(),
		Copied:      copied,
	}); err != nil {
		return d, err
	}
	return d.WithSourceURI(dst.String()), nil
}

// copyObject streams src into a scratch file and uploads it to dst. The
// upload is conditional on dst being absent; losing that race to another
// writer of the same object counts as already transferred. The scratch
// directory is removed on every path.
func (s *Service) copyObject(ctx context.Context, st *stores, src, dst asset.URI, log *zap.Logger) (bool, error) {
	fail := func(op string, err error) (bool, error) {
		log.Error("failed while trying to upload file", zap.String("op", op), zap.Error(err))
		return false, &Error{Op: op, Source: src.String(), Destination: dst.String(), Err: fmt.Errorf("%w: %w", asset.ErrTransport, err)}
	}

	dir, err := os.MkdirTemp(s.scratchDir, "transfer-*")
	if err != nil {
		return fail("create scratch", err)
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, src.Basename())
	size, err := download(ctx, st.source, src, local)
	if err != nil {
		return fail("download", err)
	}

	f, err := os.Open(local)
	if err != nil {
		return fail("open scratch", err)
	}
	defer f.Close()

	err = st.destination.Put(ctx, dst.Bucket, dst.Key, f, size, objectstore.PutOptions{IfAbsent: true})
	if errors.Is(err, objectstore.ErrPreconditionFailed) {
		log.Info("destination appeared during copy, keeping existing object")
		return false, nil
	}
	if err != nil {
		return fail("upload", err)
	}
	log.Info("copied object", zap.Int64("size", size))
	return true, nil
}

func download(ctx context.Context, store objectstore.Client, src asset.URI, local string) (int64, error) {
	body, err := store.Get(ctx, src.Bucket, src.Key)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	f, err := os.Create(local)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}
