package ingestion

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/your-org/assetflow/internal/asset"
	"github.com/your-org/assetflow/internal/credentials"
	"github.com/your-org/assetflow/internal/discovery"
	"github.com/your-org/assetflow/internal/events"
	"github.com/your-org/assetflow/internal/oauth"
	"github.com/your-org/assetflow/internal/secrets"
	"github.com/your-org/assetflow/internal/submission"
	"github.com/your-org/assetflow/internal/transfer"
	"github.com/your-org/assetflow/pkg/config"
	"github.com/your-org/assetflow/pkg/kafka"
	"github.com/your-org/assetflow/pkg/storage/objectstore"
)

// Build wires a Service from process configuration.
func Build(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*Service, error) {
	for name, raw := range map[string]string{
		"STAC_INGESTOR_API_URL": cfg.Submission.IngestorURL,
		"LEDGER_API_URL":        cfg.Submission.LedgerURL,
	} {
		if err := validateEndpoint(raw); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	if cfg.Submission.IngestorURL == "" {
		logr.Warn("STAC_INGESTOR_API_URL is not set, only dry-run submissions will succeed")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	stores := asset.NewStoreFactory(objectstore.Config{
		Provider:  cfg.Storage.Provider,
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.AWS.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		PathStyle: cfg.Storage.PathStyle,
	})

	publisher := kafka.NewPublisher(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		Compression:  kafka.CompressionFromString(cfg.Kafka.CompressionCodec),
		RequiredAcks: kafkago.RequireAll,
		MaxAttempts:  cfg.Kafka.Retries,
	})
	emitter := events.NewEmitter(publisher)

	secretStore := secrets.NewFromConfig(awsCfg)
	httpClient := &http.Client{Timeout: cfg.Submission.HTTPTimeout}
	tokens := oauth.NewBroker(httpClient, logr.Named("oauth"))

	return NewService(Params{
		Broker: credentials.NewFromConfig(awsCfg, logr.Named("credentials")),
		Discovery: discovery.NewService(discovery.Params{
			Stores:    stores,
			ChunkSize: cfg.Discovery.ChunkSize,
			Logger:    logr.Named("discovery"),
		}),
		Transfer: transfer.NewService(transfer.Params{
			Stores:      stores,
			Emitter:     emitter,
			Logger:      logr.Named("transfer"),
			ScratchDir:  cfg.Transfer.ScratchDir,
			Concurrency: cfg.Transfer.Concurrency,
		}),
		NewSubmitter: func() *submission.Submitter {
			return submission.New(submission.Params{
				Stores:     stores,
				Secrets:    secretStore,
				Tokens:     tokens,
				SecretID:   cfg.Submission.SecretID,
				CatalogURL: cfg.Submission.IngestorURL,
				LedgerURL:  cfg.Submission.LedgerURL,
				HTTPClient: httpClient,
				Emitter:    emitter,
				Logger:     logr.Named("submission"),
			})
		},
		Publisher: publisher,
		Settings: Settings{
			DiscoveryRoleARN: cfg.Discovery.AssumeRoleARN,
			TransferRoleARN:  cfg.Transfer.ExternalRoleARN,
			TargetBucket:     cfg.Transfer.Bucket,
		},
		Logger: logr,
	}), nil
}

func validateEndpoint(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) url", raw)
	}
	return nil
}
