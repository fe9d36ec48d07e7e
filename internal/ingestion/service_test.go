package ingestion

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/assetflow/internal/asset"
	"github.com/your-org/assetflow/internal/credentials"
	"github.com/your-org/assetflow/internal/discovery"
	"github.com/your-org/assetflow/internal/submission"
	"github.com/your-org/assetflow/internal/transfer"
	"github.com/your-org/assetflow/pkg/storage/objectstore"
	"github.com/your-org/assetflow/pkg/storage/objectstore/objectstoretest"
)

type assumeCall struct {
	roleARN     string
	sessionName string
}

type fakeBroker struct {
	calls []assumeCall
	err   error
}

func (f *fakeBroker) AssumeRole(_ context.Context, roleARN, sessionName string) (*asset.Credentials, error) {
	f.calls = append(f.calls, assumeCall{roleARN: roleARN, sessionName: sessionName})
	if f.err != nil {
		return nil, f.err
	}
	return &asset.Credentials{AccessKeyID: "AKIA" + sessionName, SecretAccessKey: "secret", SessionToken: "token"}, nil
}

type fixture struct {
	svc        *Service
	store      *objectstoretest.Memory
	broker     *fakeBroker
	creds      []*asset.Credentials
	submitters int
}

func newFixture(t *testing.T, settings Settings) *fixture {
	t.Helper()
	f := &fixture{
		store:  objectstoretest.NewMemory(),
		broker: &fakeBroker{},
	}
	logr := zaptest.NewLogger(t)
	stores := func(_ context.Context, creds *asset.Credentials) (objectstore.Client, error) {
		f.creds = append(f.creds, creds)
		return f.store, nil
	}
	f.svc = NewService(Params{
		Broker:    f.broker,
		Discovery: discovery.NewService(discovery.Params{Stores: stores, Logger: logr}),
		Transfer:  transfer.NewService(transfer.Params{Stores: stores, Logger: logr, ScratchDir: t.TempDir()}),
		NewSubmitter: func() *submission.Submitter {
			f.submitters++
			return submission.New(submission.Params{Stores: stores, Logger: logr})
		},
		Settings: settings,
		Logger:   logr,
	})
	return f
}

func TestDiscoverUsesRequestRole(t *testing.T) {
	f := newFixture(t, Settings{})
	f.store.Seed("src", "in/a.tif", []byte("a"))

	res, err := f.svc.Discover(context.Background(), discovery.Request{Bucket: "src", Prefix: "in/", Collection: "c", RoleARN: "arn:aws:iam::1:role/read"})
	require.NoError(t, err)
	require.Len(t, res.Discovered, 1)

	require.Len(t, f.broker.calls, 1)
	assert.Equal(t, "arn:aws:iam::1:role/read", f.broker.calls[0].roleARN)
	assert.Equal(t, credentials.DiscoverySessionName, f.broker.calls[0].sessionName)
	require.NotEmpty(t, f.creds)
	require.NotNil(t, f.creds[0])
}

func TestDiscoverConfiguredRoleOverridesRequest(t *testing.T) {
	f := newFixture(t, Settings{DiscoveryRoleARN: "arn:aws:iam::1:role/env"})
	f.store.Seed("src", "in/a.tif", []byte("a"))

	_, err := f.svc.Discover(context.Background(), discovery.Request{Bucket: "src", RoleARN: "arn:aws:iam::1:role/request"})
	require.NoError(t, err)
	require.Len(t, f.broker.calls, 1)
	assert.Equal(t, "arn:aws:iam::1:role/env", f.broker.calls[0].roleARN)
}

func TestDiscoverAmbientWithoutRole(t *testing.T) {
	f := newFixture(t, Settings{})
	f.store.Seed("src", "in/a.tif", []byte("a"))

	_, err := f.svc.Discover(context.Background(), discovery.Request{Bucket: "src"})
	require.NoError(t, err)
	assert.Empty(t, f.broker.calls)
	require.NotEmpty(t, f.creds)
	assert.Nil(t, f.creds[0])
}

func TestDiscoverAssumeRoleFailure(t *testing.T) {
	f := newFixture(t, Settings{})
	f.broker.err = fmt.Errorf("%w: denied", asset.ErrAuthorization)

	_, err := f.svc.Discover(context.Background(), discovery.Request{Bucket: "src", RoleARN: "arn:aws:iam::1:role/read"})
	require.ErrorIs(t, err, asset.ErrAuthorization)
	assert.Zero(t, f.store.Lists)
}

func TestTransferRequiresTargetBucket(t *testing.T) {
	f := newFixture(t, Settings{})

	_, err := f.svc.Transfer(context.Background(), []asset.Descriptor{{SourceURI: "s3://src/a.tif", Collection: "c", Upload: true}})
	require.ErrorIs(t, err, asset.ErrSchema)
}

func TestTransferPassThroughSkipsRole(t *testing.T) {
	f := newFixture(t, Settings{TargetBucket: "archive", TransferRoleARN: "arn:aws:iam::1:role/write"})
	batch := []asset.Descriptor{{SourceURI: "s3://src/a.tif", Collection: "c"}}

	out, err := f.svc.Transfer(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, batch, out)
	assert.Empty(t, f.broker.calls)
	assert.Empty(t, f.creds)
}

func TestTransferAssumesRoleOncePerBatch(t *testing.T) {
	f := newFixture(t, Settings{TargetBucket: "archive", TransferRoleARN: "arn:aws:iam::1:role/write"})
	f.store.Seed("src", "in/a.tif", []byte("a"))
	f.store.Seed("src", "in/b.tif", []byte("b"))

	out, err := f.svc.Transfer(context.Background(), []asset.Descriptor{
		{SourceURI: "s3://src/in/a.tif", Collection: "c", Upload: true},
		{SourceURI: "s3://src/in/b.tif", Collection: "c", Upload: true},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "s3://archive/c/a.tif", out[0].SourceURI)
	assert.Equal(t, "s3://archive/c/b.tif", out[1].SourceURI)

	require.Len(t, f.broker.calls, 1)
	assert.Equal(t, credentials.TransferSessionName, f.broker.calls[0].sessionName)
	got, ok := f.store.Object("archive", "c/a.tif")
	require.True(t, ok)
	assert.Equal(t, []byte("a"), got)
}

func TestDiscoveredPercentKeysTransferVerbatim(t *testing.T) {
	f := newFixture(t, Settings{TargetBucket: "archive"})
	f.store.Seed("src", "data/a%20b.tif", []byte("encoded"))
	f.store.Seed("src", "data/a b.tif", []byte("decoded"))
	f.store.Seed("src", "data/100%.tif", []byte("percent"))

	res, err := f.svc.Discover(context.Background(), discovery.Request{Bucket: "src", Prefix: "data/", Collection: "c", Upload: true})
	require.NoError(t, err)
	require.Len(t, res.Discovered, 3)

	out, err := f.svc.Transfer(context.Background(), res.Discovered)
	require.NoError(t, err)
	require.Len(t, out, 3)

	for key, want := range map[string]string{
		"c/a%20b.tif": "encoded",
		"c/a b.tif":   "decoded",
		"c/100%.tif":  "percent",
	} {
		got, ok := f.store.Object("archive", key)
		require.True(t, ok, key)
		assert.Equal(t, want, string(got), key)
	}
}

func TestTransferAssumeRoleFailure(t *testing.T) {
	f := newFixture(t, Settings{TargetBucket: "archive", TransferRoleARN: "arn:aws:iam::1:role/write"})
	f.broker.err = fmt.Errorf("%w: sts unreachable", asset.ErrTransport)

	_, err := f.svc.Transfer(context.Background(), []asset.Descriptor{{SourceURI: "s3://src/a.tif", Collection: "c", Upload: true}})
	require.ErrorIs(t, err, asset.ErrTransport)
	assert.Zero(t, f.store.Stats)
}

func TestSubmitBuildsSubmitterPerCall(t *testing.T) {
	f := newFixture(t, Settings{})
	req := submission.Request{
		Source: submission.InlineItem{Item: []byte(`{"id":"item-1","collection":"c"}`)},
		DryRun: true,
	}

	for range 2 {
		out, err := f.svc.Submit(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, out.DryRun)
	}
	assert.Equal(t, 2, f.submitters)
}

func TestSubmitMissingItem(t *testing.T) {
	f := newFixture(t, Settings{})

	_, err := f.svc.Submit(context.Background(), submission.Request{})
	require.True(t, errors.Is(err, asset.ErrSchema))
}

func TestValidateEndpoint(t *testing.T) {
	require.NoError(t, validateEndpoint(""))
	require.NoError(t, validateEndpoint("https://ingest.example.com/api/"))
	require.Error(t, validateEndpoint("ingest.example.com"))
	require.Error(t, validateEndpoint("ftp://ingest.example.com"))
}
