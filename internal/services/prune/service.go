// Package prune removes dump files that have aged out of retention.
package prune

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/opsdeck/dbackup/internal/services/dump"
)

// Service defines the interface for retention pruning.
type Service interface {
	Prune(ctx context.Context, dir string, targets []string, retentionDays int) (int, error)
}

// Impl implements the prune Service.
type Impl struct {
	logger zerolog.Logger
}

// New creates a prune service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

// Prune deletes dumps under dir whose encoded timestamp is older than
// retentionDays. Only files whose name parses back to exactly one of the
// known targets are considered; everything else in the output directory,
// including dumps of retired targets, is left alone. The removed count is
// returned.
func (s *Impl) Prune(ctx context.Context, dir string, targets []string, retentionDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading output directory: %w", err)
	}

	known := make(map[string]bool, len(targets))
	for _, target := range targets {
		known[target] = true
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		target, ts, ok := dump.ParseFilename(name)
		if !ok || !known[target] {
			continue
		}
		if !ts.Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			s.logger.Warn().Str("file", name).Err(err).Msg("could not remove expired dump")
			continue
		}

		s.logger.Info().Str("file", name).Msg("removed expired dump")
		removed++
	}

	return removed, nil
}
