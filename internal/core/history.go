package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/eteeap-survey/internal/logging"
)

func (s *Service) recordRun(ctx context.Context, up Upload, opts ImportOptions, result *ImportResult, at time.Time) {
	if s.stores.Runs == nil {
		return
	}
	run := ImportRun{
		ID:            result.RunID,
		FileName:      up.FileName,
		Atomic:        opts.Atomic,
		StrictHeaders: opts.StrictHeaders,
		Total:         result.Total,
		Inserted:      result.Inserted,
		Failed:        result.Failed,
		RolledBack:    result.RolledBack,
		ErrorCount:    result.errorCount,
		Actor:         opts.Actor,
		CreatedAt:     at,
	}
	if err := s.stores.Runs.RecordImportRun(context.WithoutCancel(ctx), run); err != nil {
		logging.FromContext(ctx).Error("record import run failed", "run_id", run.ID, "error", err)
	}
}

// ImportHistory returns the most recent import runs.
func (s *Service) ImportHistory(ctx context.Context, limit int) ([]ImportRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.stores.Runs.ListImportRuns(ctx, limit)
}
