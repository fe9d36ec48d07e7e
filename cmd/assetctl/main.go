package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/your-org/assetflow/internal/asset"
	"github.com/your-org/assetflow/internal/discovery"
	"github.com/your-org/assetflow/internal/ingestion"
	"github.com/your-org/assetflow/internal/submission"
	"github.com/your-org/assetflow/pkg/config"
	"github.com/your-org/assetflow/pkg/logger"
)

const (
	exitFailure       = 1
	exitSchema        = 2
	exitAuthorization = 3
	exitTransport     = 4
	exitPartial       = 5
)

type cliError struct {
	code int
	err  error
}

func (e cliError) Error() string { return e.err.Error() }

func (e cliError) Unwrap() error { return e.err }

// pipeline is the stage surface the commands drive.
type pipeline interface {
	Discover(ctx context.Context, req discovery.Request) (*discovery.Result, error)
	Transfer(ctx context.Context, batch []asset.Descriptor) ([]asset.Descriptor, error)
	Submit(ctx context.Context, req submission.Request) (*submission.Outcome, error)
	Close(ctx context.Context) error
}

var buildPipeline = func(ctx context.Context) (pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New("assetctl", cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	svc, err := ingestion.Build(ctx, cfg, logr)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		var ce cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.err)
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailure)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "assetctl",
		Short:         "Run a single asset pipeline stage against a JSON event",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newDiscoverCommand())
	root.AddCommand(newTransferCommand())
	root.AddCommand(newSubmitCommand())
	return root
}

func newDiscoverCommand() *cobra.Command {
	var eventPath string
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List a bucket prefix into one batch of asset descriptors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readEvent(cmd, eventPath)
			if err != nil {
				return err
			}
			var req discovery.Request
			if err := json.Unmarshal(raw, &req); err != nil {
				return stageError(fmt.Errorf("%w: decode discovery event: %v", asset.ErrSchema, err))
			}
			return runStage(cmd, func(ctx context.Context, p pipeline) (any, error) {
				return p.Discover(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&eventPath, "event", "-", "event JSON file, - for stdin")
	return cmd
}

func newTransferCommand() *cobra.Command {
	var eventPath string
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Copy upload-flagged assets of a batch into the archive bucket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readEvent(cmd, eventPath)
			if err != nil {
				return err
			}
			var batch []asset.Descriptor
			if err := json.Unmarshal(raw, &batch); err != nil {
				return stageError(fmt.Errorf("%w: decode transfer batch: %v", asset.ErrSchema, err))
			}
			return runStage(cmd, func(ctx context.Context, p pipeline) (any, error) {
				return p.Transfer(ctx, batch)
			})
		},
	}
	cmd.Flags().StringVar(&eventPath, "event", "-", "batch JSON file, - for stdin")
	return cmd
}

func newSubmitCommand() *cobra.Command {
	var eventPath string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a catalog item and its provenance record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readEvent(cmd, eventPath)
			if err != nil {
				return err
			}
			req, err := submission.ParseEvent(raw)
			if err != nil {
				return stageError(err)
			}
			if dryRun {
				req.DryRun = true
			}
			return runStage(cmd, func(ctx context.Context, p pipeline) (any, error) {
				return p.Submit(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&eventPath, "event", "-", "event JSON file, - for stdin")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve the item without submitting it")
	return cmd
}

func readEvent(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func runStage(cmd *cobra.Command, run func(context.Context, pipeline) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close(context.Background()) //nolint:errcheck

	out, err := run(ctx, p)
	if err != nil {
		return stageError(err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func stageError(err error) error {
	return cliError{code: exitCode(err), err: err}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, asset.ErrSchema):
		return exitSchema
	case errors.Is(err, asset.ErrPartialPipeline):
		return exitPartial
	case errors.Is(err, asset.ErrAuthorization):
		return exitAuthorization
	case errors.Is(err, asset.ErrTransport):
		return exitTransport
	default:
		return exitFailure
	}
}
