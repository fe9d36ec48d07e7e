package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/assetflow/internal/asset"
	"github.com/your-org/assetflow/internal/discovery"
	"github.com/your-org/assetflow/internal/submission"
)

type fakePipeline struct {
	discovered discovery.Request
	batch      []asset.Descriptor
	submitted  submission.Request
	err        error
	closed     bool
}

func (f *fakePipeline) Discover(_ context.Context, req discovery.Request) (*discovery.Result, error) {
	f.discovered = req
	if f.err != nil {
		return nil, f.err
	}
	return &discovery.Result{Request: req, Discovered: []asset.Descriptor{{SourceURI: "s3://" + req.Bucket + "/a.tif", Collection: req.Collection}}}, nil
}

func (f *fakePipeline) Transfer(_ context.Context, batch []asset.Descriptor) ([]asset.Descriptor, error) {
	f.batch = batch
	if f.err != nil {
		return nil, f.err
	}
	return batch, nil
}

func (f *fakePipeline) Submit(_ context.Context, req submission.Request) (*submission.Outcome, error) {
	f.submitted = req
	if f.err != nil {
		return nil, f.err
	}
	return &submission.Outcome{DryRun: req.DryRun}, nil
}

func (f *fakePipeline) Close(context.Context) error {
	f.closed = true
	return nil
}

func usePipeline(t *testing.T, p *fakePipeline) {
	t.Helper()
	original := buildPipeline
	t.Cleanup(func() { buildPipeline = original })
	buildPipeline = func(context.Context) (pipeline, error) { return p, nil }
}

func writeEvent(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args []string, stdin string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDiscoverCommand(t *testing.T) {
	p := &fakePipeline{}
	usePipeline(t, p)

	path := writeEvent(t, `{"bucket":"src","prefix":"in/","collection":"c","upload":true}`)
	out, err := execute(t, []string{"discover", "--event", path}, "")
	require.NoError(t, err)

	assert.Equal(t, "src", p.discovered.Bucket)
	assert.True(t, p.discovered.Upload)
	assert.True(t, p.closed)

	var res discovery.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Discovered, 1)
	assert.Equal(t, "s3://src/a.tif", res.Discovered[0].SourceURI)
}

func TestTransferCommandReadsStdin(t *testing.T) {
	p := &fakePipeline{}
	usePipeline(t, p)

	out, err := execute(t, []string{"transfer"}, `[{"s3_filename":"s3://src/a.tif","collection":"c","upload":false}]`)
	require.NoError(t, err)
	require.Len(t, p.batch, 1)
	assert.Contains(t, out, `"s3_filename": "s3://src/a.tif"`)
}

func TestSubmitCommandDryRunFlag(t *testing.T) {
	p := &fakePipeline{}
	usePipeline(t, p)

	path := writeEvent(t, `{"stac_item":{"id":"item-1"}}`)
	_, err := execute(t, []string{"submit", "--event", path, "--dry-run"}, "")
	require.NoError(t, err)
	assert.True(t, p.submitted.DryRun)
	assert.IsType(t, submission.InlineItem{}, p.submitted.Source)
}

func TestSubmitCommandRejectsEmptyEvent(t *testing.T) {
	usePipeline(t, &fakePipeline{})

	_, err := execute(t, []string{"submit"}, `{}`)
	var ce cliError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, exitSchema, ce.code)
}

func TestStageErrorExitCodes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("x: %w", asset.ErrAuthorization), exitAuthorization},
		{fmt.Errorf("x: %w", asset.ErrTransport), exitTransport},
		{fmt.Errorf("%w: %w", asset.ErrPartialPipeline, asset.ErrTransport), exitPartial},
		{errors.New("boom"), exitFailure},
	}
	for _, tc := range cases {
		p := &fakePipeline{err: tc.err}
		usePipeline(t, p)

		_, err := execute(t, []string{"discover"}, `{"bucket":"src"}`)
		var ce cliError
		require.True(t, errors.As(err, &ce), "%v", tc.err)
		assert.Equal(t, tc.code, ce.code)
		assert.True(t, p.closed)
	}
}

func TestDiscoverCommandInvalidJSON(t *testing.T) {
	usePipeline(t, &fakePipeline{})

	_, err := execute(t, []string{"discover"}, `{`)
	var ce cliError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, exitSchema, ce.code)
}
