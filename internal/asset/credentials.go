package asset

import (
	"context"
	"time"

	"github.com/your-org/assetflow/pkg/storage/objectstore"
)

// Credentials are short-lived delegated credentials for another account.
// They belong to the call that requested them and must never be logged.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

func (c Credentials) String() string {
	return "Credentials{redacted}"
}

func (c Credentials) GoString() string {
	return c.String()
}

// StoreFactory builds an object-store client bound to creds, or to the
// ambient identity when creds is nil.
type StoreFactory func(ctx context.Context, creds *Credentials) (objectstore.Client, error)

// NewStoreFactory returns a StoreFactory deriving clients from base.
func NewStoreFactory(base objectstore.Config) StoreFactory {
	return func(ctx context.Context, creds *Credentials) (objectstore.Client, error) {
		cfg := base
		if creds != nil {
			cfg.AccessKey = creds.AccessKeyID
			cfg.SecretKey = creds.SecretAccessKey
			cfg.SessionToken = creds.SessionToken
		}
		return objectstore.New(ctx, cfg)
	}
}
