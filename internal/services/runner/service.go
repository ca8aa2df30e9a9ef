// Package runner orchestrates full backup batches.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/opsdeck/dbackup/internal/config"
	"github.com/opsdeck/dbackup/internal/models"
	"github.com/opsdeck/dbackup/internal/services/compress"
	"github.com/opsdeck/dbackup/internal/services/dump"
	"github.com/opsdeck/dbackup/internal/services/prune"
	"github.com/opsdeck/dbackup/internal/services/telegram"
	"github.com/opsdeck/dbackup/internal/services/upload"
)

// Service defines the interface for running a backup batch.
type Service interface {
	Run(ctx context.Context, targets []models.Target) (*models.RunSummary, error)
}

// Impl implements the runner Service.
type Impl struct {
	dumpSvc     dump.Service
	compressSvc compress.Service
	pruneSvc    prune.Service
	uploadSvc   upload.Service
	telegramSvc telegram.Service
	settings    models.Settings
	logger      zerolog.Logger
}

// New creates a runner with the default service implementations. Upload and
// notification services are only constructed when their settings are
// present.
func New(ctx context.Context, logger zerolog.Logger, settings models.Settings) (*Impl, error) {
	runner := &Impl{
		dumpSvc:     dump.New(logger),
		compressSvc: compress.New(),
		pruneSvc:    prune.New(logger),
		settings:    settings,
		logger:      logger,
	}

	if settings.S3 != nil {
		svc, err := upload.New(ctx, logger, *settings.S3)
		if err != nil {
			return nil, fmt.Errorf("initializing s3 upload: %w", err)
		}
		runner.uploadSvc = svc
	}

	if settings.Telegram != nil {
		svc, err := telegram.New(logger, *settings.Telegram)
		if err != nil {
			return nil, fmt.Errorf("initializing telegram notifier: %w", err)
		}
		runner.telegramSvc = svc
	}

	return runner, nil
}

// NewWithServices creates a runner with custom services (for testing).
// uploadSvc and telegramSvc may be nil to disable those steps.
func NewWithServices(
	logger zerolog.Logger,
	settings models.Settings,
	dumpSvc dump.Service,
	compressSvc compress.Service,
	pruneSvc prune.Service,
	uploadSvc upload.Service,
	telegramSvc telegram.Service,
) *Impl {
	return &Impl{
		dumpSvc:     dumpSvc,
		compressSvc: compressSvc,
		pruneSvc:    pruneSvc,
		uploadSvc:   uploadSvc,
		telegramSvc: telegramSvc,
		settings:    settings,
		logger:      logger,
	}
}

// Run executes one backup batch. Targets are processed in configuration
// order, each failure stays contained to its own target, and the batch
// produces exactly one result per target. The error return is reserved for
// conditions that prevent the batch from running at all.
func (s *Impl) Run(ctx context.Context, targets []models.Target) (*models.RunSummary, error) {
	start := time.Now()

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	summary := &models.RunSummary{
		Host:      host,
		StartTime: start,
		Results:   make([]models.DumpResult, 0, len(targets)),
	}

	s.logger.Info().
		Int("targets", len(targets)).
		Str("output_dir", s.settings.OutputDir).
		Msg("starting backup batch")

	for _, target := range targets {
		result := s.processTarget(ctx, target)

		if result.Succeeded && s.uploadSvc != nil {
			// A runner wired with an uploader but no S3 settings still
			// uploads, with an empty key prefix.
			prefix := ""
			if s.settings.S3 != nil {
				prefix = s.settings.S3.Prefix
			}
			key := upload.ObjectKey(prefix, target.Name, filepath.Base(result.OutputPath))
			if err := s.uploadSvc.Upload(ctx, result.OutputPath, key); err != nil {
				s.logger.Error().Str("target", target.Name).Err(err).Msg("upload failed")
				summary.UploadsFailed++
			}
		}

		if result.Succeeded {
			s.logger.Info().
				Str("target", target.Name).
				Str("output", result.OutputPath).
				Int64("size_bytes", result.SizeBytes).
				Dur("duration", result.Duration).
				Msg("target succeeded")
		} else {
			s.logger.Error().
				Str("target", target.Name).
				Err(result.Err).
				Msg("target failed")
		}

		summary.Results = append(summary.Results, *result)
	}

	if s.settings.RetentionDays > 0 {
		removed, err := s.pruneSvc.Prune(ctx, s.settings.OutputDir, targetNames(targets), s.settings.RetentionDays)
		if err != nil {
			s.logger.Warn().Err(err).Msg("retention pruning failed")
		} else {
			summary.PruneRemoved = removed
		}
	}

	summary.Duration = time.Since(start)

	s.logger.Info().
		Int("succeeded", summary.Succeeded()).
		Int("failed", summary.Failed()).
		Int("uploads_failed", summary.UploadsFailed).
		Dur("duration", summary.Duration).
		Msg("backup batch finished")

	if s.telegramSvc != nil {
		if err := s.telegramSvc.SendSummary(ctx, summary); err != nil {
			s.logger.Error().Err(err).Msg("failed to send telegram notification")
		}
	}

	return summary, nil
}

// processTarget runs the dump pipeline for one target: validation, the dump
// itself, and optional compression. Every failure is captured inside the
// returned result.
func (s *Impl) processTarget(ctx context.Context, target models.Target) *models.DumpResult {
	if err := config.ValidateTarget(target); err != nil {
		return &models.DumpResult{Target: target.Name, Err: err}
	}

	result, err := s.dumpSvc.Dump(ctx, target, s.settings.OutputDir)
	if err != nil {
		return &models.DumpResult{Target: target.Name, Err: err}
	}
	if !result.Succeeded {
		return result
	}

	if s.settings.Compress {
		compressedPath := result.OutputPath + ".gz"
		if err := s.compressSvc.Compress(result.OutputPath, compressedPath); err != nil {
			_ = os.Remove(compressedPath)
			return &models.DumpResult{
				Target:   target.Name,
				Duration: result.Duration,
				Err:      fmt.Errorf("compressing %s: %w", result.OutputPath, err),
			}
		}

		_ = os.Remove(result.OutputPath)
		result.OutputPath = compressedPath
		if info, err := os.Stat(compressedPath); err == nil {
			result.SizeBytes = info.Size()
		}
	}

	return result
}

// targetNames extracts the names of the configured targets.
func targetNames(targets []models.Target) []string {
	names := make([]string, 0, len(targets))
	for _, target := range targets {
		names = append(names, target.Name)
	}

	return names
}
