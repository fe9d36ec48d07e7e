package ingestion

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/your-org/assetflow/internal/asset"
	"github.com/your-org/assetflow/internal/credentials"
	"github.com/your-org/assetflow/internal/discovery"
	"github.com/your-org/assetflow/internal/submission"
	"github.com/your-org/assetflow/internal/transfer"
	"github.com/your-org/assetflow/pkg/kafka"
)

// RoleAssumer obtains delegated credentials.
type RoleAssumer interface {
	AssumeRole(ctx context.Context, roleARN, sessionName string) (*asset.Credentials, error)
}

// Settings are the deployment-level knobs of the pipeline.
type Settings struct {
	// DiscoveryRoleARN, when set, overrides the role_arn of discovery requests.
	DiscoveryRoleARN string
	// TransferRoleARN authorizes writes into TargetBucket when set.
	TransferRoleARN string
	TargetBucket    string
}

// Service exposes the three pipeline stages as independent units of work.
// Every call requests its own credentials and builds its own submitter;
// nothing is carried over between calls.
type Service struct {
	broker       RoleAssumer
	discovery    *discovery.Service
	transfer     *transfer.Service
	newSubmitter func() *submission.Submitter
	publisher    kafka.Publisher
	settings     Settings
	logger       *zap.Logger
}

type Params struct {
	Broker       RoleAssumer
	Discovery    *discovery.Service
	Transfer     *transfer.Service
	NewSubmitter func() *submission.Submitter
	Publisher    kafka.Publisher
	Settings     Settings
	Logger       *zap.Logger
}

// NewService constructs an ingestion Service.
func NewService(p Params) *Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = kafka.Nop{}
	}
	return &Service{
		broker:       p.Broker,
		discovery:    p.Discovery,
		transfer:     p.Transfer,
		newSubmitter: p.NewSubmitter,
		publisher:    publisher,
		settings:     p.Settings,
		logger:       p.Logger,
	}
}

// Discover runs one discovery step, assuming the read role when configured.
func (s *Service) Discover(ctx context.Context, req discovery.Request) (*discovery.Result, error) {
	roleARN := req.RoleARN
	if s.settings.DiscoveryRoleARN != "" {
		roleARN = s.settings.DiscoveryRoleARN
	}

	creds, err := s.assume(ctx, roleARN, credentials.DiscoverySessionName)
	if err != nil {
		return nil, err
	}
	return s.discovery.Discover(ctx, req, creds)
}

// Transfer moves every upload-flagged descriptor of batch into the target
// bucket. A batch is one processing unit: it gets one set of credentials.
func (s *Service) Transfer(ctx context.Context, batch []asset.Descriptor) ([]asset.Descriptor, error) {
	if s.settings.TargetBucket == "" {
		return nil, fmt.Errorf("%w: target bucket is not configured", asset.ErrSchema)
	}
	if !needsUpload(batch) {
		return batch, nil
	}

	creds, err := s.assume(ctx, s.settings.TransferRoleARN, credentials.TransferSessionName)
	if err != nil {
		return nil, err
	}
	return s.transfer.TransferBatch(ctx, batch, s.settings.TargetBucket, creds)
}

// Submit runs one submission with a fresh submitter.
func (s *Service) Submit(ctx context.Context, req submission.Request) (*submission.Outcome, error) {
	return s.newSubmitter().Submit(ctx, req)
}

// Close releases underlying resources.
func (s *Service) Close(ctx context.Context) error {
	return s.publisher.Close(ctx)
}

func (s *Service) assume(ctx context.Context, roleARN, sessionName string) (*asset.Credentials, error) {
	if roleARN == "" {
		return nil, nil
	}
	return s.broker.AssumeRole(ctx, roleARN, sessionName)
}

func needsUpload(batch []asset.Descriptor) bool {
	for _, d := range batch {
		if d.Upload {
			return true
		}
	}
	return false
}
