package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/oauth2"

	"github.com/kuncarous/nextmu-remix/internal/config"
	"github.com/kuncarous/nextmu-remix/internal/domain"
	"github.com/kuncarous/nextmu-remix/internal/gatewayclient"
	"github.com/kuncarous/nextmu-remix/internal/github"
	"github.com/kuncarous/nextmu-remix/internal/logging"
	"github.com/kuncarous/nextmu-remix/internal/source"
	"github.com/kuncarous/nextmu-remix/internal/temp"
	"github.com/kuncarous/nextmu-remix/internal/transfer"
	"github.com/kuncarous/nextmu-remix/internal/updatesvc"
)

func main() {
	cfg, err := config.LoadUploader(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "uploader:", err)
		os.Exit(2)
	}
	logger := logging.New("uploader", cfg.LogLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("upload failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.UploaderConfig, logger *slog.Logger) error {
	src, cleanup, err := openSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	svc, closeSvc, err := dialService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSvc()

	for attempt := 0; ; attempt++ {
		attemptLogger := logger.With("attempt_id", uuid.NewString(), "attempt", attempt+1)
		reporter := &progressReporter{logger: attemptLogger}
		m := transfer.NewMachine(svc, cfg.VersionID,
			transfer.WithChunkSize(cfg.ChunkSize),
			transfer.WithParallelism(cfg.Parallel),
			transfer.WithLogger(attemptLogger),
			transfer.WithTransitionHook(func(t transfer.Transition) {
				attemptLogger.Info("state", "from", t.From.String(), "to", t.To.String())
			}),
			transfer.WithProgressHook(reporter.report),
		)

		res, err := m.Run(ctx, src)
		if err == nil {
			if spooled, ok := src.(*temp.Spooled); ok {
				if err := spooled.Verify(res.Hash); err != nil {
					return err
				}
			}
			attemptLogger.Info("artifact uploaded",
				"source", src.Name(),
				"mode", cfg.Mode,
				"version_id", cfg.VersionID,
				"upload_id", res.Session.UploadID,
				"hash", res.Hash,
				"sent", res.Stats.Sent,
				"skipped", res.Stats.Skipped,
			)
			return nil
		}

		var terr *transfer.TransferError
		if !errors.As(err, &terr) || !terr.Retryable() || attempt >= cfg.Retries {
			return err
		}

		wait := time.Duration(attempt+1) * 2 * time.Second
		attemptLogger.Warn("transient failure, resuming", "error", err, "retry_in", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func openSource(ctx context.Context, cfg *config.UploaderConfig, logger *slog.Logger) (transfer.Source, func(), error) {
	if cfg.File != "" {
		if ct := github.ContentTypeFromName(cfg.File); ct != domain.ArtifactType {
			return nil, nil, fmt.Errorf("%s is not a zip archive", cfg.File)
		}
		f, err := source.NewFile(cfg.File)
		if err != nil {
			return nil, nil, err
		}
		return f, func() {}, nil
	}

	ref, err := github.ParseAssetRef(cfg.GitHubAsset)
	if err != nil {
		return nil, nil, err
	}
	asset, err := github.NewReleaseClient(cfg.GitHubToken).Resolve(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	spool, err := temp.NewStore(cfg.SpoolDir)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("downloading release asset", "asset", asset.Name(), "size", asset.Size())
	local, err := spool.Spool(ctx, asset)
	if err != nil {
		return nil, nil, err
	}
	return local, func() {
		if err := local.Remove(); err != nil {
			logger.Warn("failed to remove spooled asset", "error", err)
		}
	}, nil
}

func dialService(ctx context.Context, cfg *config.UploaderConfig, logger *slog.Logger) (domain.UpdateService, func(), error) {
	if cfg.DirectAddr == "" {
		c, err := gatewayclient.New(cfg.GatewayURL, cfg.Session, cfg.Mode)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("uploading through gateway", "gateway", cfg.GatewayURL, "mode", cfg.Mode)
		return c, func() {}, nil
	}

	client, err := updatesvc.Dial(ctx, updatesvc.Options{
		Address: cfg.DirectAddr,
		TLS:     cfg.DirectTLS,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, err
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
	return client.WithTokenSource(ts), func() { _ = client.Close() }, nil
}

// progressReporter logs each phase once per 10% step.
type progressReporter struct {
	logger *slog.Logger

	mu     sync.Mutex
	phase  transfer.State
	bucket int
}

func (p *progressReporter) report(s transfer.Snapshot) {
	bucket := int(s.Percent) / 10
	p.mu.Lock()
	if s.Phase != p.phase {
		p.phase = s.Phase
		p.bucket = -1
	}
	if bucket <= p.bucket {
		p.mu.Unlock()
		return
	}
	p.bucket = bucket
	p.mu.Unlock()

	p.logger.Info("progress",
		"phase", s.Phase.String(),
		"percent", fmt.Sprintf("%.0f", s.Percent),
		"bytes", s.ProcessedBytes,
		"total", s.TotalBytes,
		"rate_bps", int64(s.RateBps),
		"eta", s.ETA.Round(time.Second),
	)
}
