package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrPreconditionFailed is returned by Put when PutOptions.IfAbsent is set
// and the key already exists.
var ErrPreconditionFailed = errors.New("object already exists")

// Config contains the information required to talk to an object store.
// An empty AccessKey means the ambient identity of the process is used.
type Config struct {
	Provider     string
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	UseSSL       bool
	PathStyle    bool
}

// Existence is the outcome of a successful existence check.
type Existence int

const (
	NotFound Existence = iota
	Found
)

func (e Existence) String() string {
	if e == Found {
		return "found"
	}
	return "not_found"
}

// ObjectInfo describes a listed object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ListOptions narrows a listing. Keys are visited in lexical order starting
// strictly after StartAfter.
type ListOptions struct {
	Prefix     string
	StartAfter string
}

// PutOptions controls an upload.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
	// IfAbsent makes the write conditional on the key not existing yet.
	IfAbsent bool
}

// Client represents the capabilities the pipeline expects from a store.
type Client interface {
	// Stat reports whether key exists. A missing key is NotFound with a nil error;
	// any other failure is returned as an error.
	Stat(ctx context.Context, bucket, key string) (Existence, error)
	// List visits objects under opts until fn returns false.
	List(ctx context.Context, bucket string, opts ListOptions, fn func(ObjectInfo) bool) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts PutOptions) error
	Close() error
}

// New creates an object store client based on the given configuration.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Provider {
	case "", "s3":
		return newS3Client(ctx, cfg)
	case "minio":
		return newMinioClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported object store provider: %s", cfg.Provider)
	}
}
