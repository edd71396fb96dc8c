package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	jitterbug "github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/dataforge/workflow-engine/internal/audit"
	"github.com/dataforge/workflow-engine/internal/config"
	"github.com/dataforge/workflow-engine/internal/events"
	"github.com/dataforge/workflow-engine/internal/export"
	"github.com/dataforge/workflow-engine/internal/store"
	"github.com/dataforge/workflow-engine/internal/store/model"
	"github.com/dataforge/workflow-engine/pkg/metrics"
)

// Scheduler promotes files from PROCESSING to COMPLETE once every one of
// their records carries a final status. It runs alone on a fixed-delay
// ticker: a tick starts only after the previous one finished, so the
// scheduler never overlaps itself.
type Scheduler struct {
	cfg       *config.Config
	store     store.Store
	producer  *events.EventProducer
	audits    *audit.Publisher
	exporter  *export.Exporter
	exportDir string
	log       *zap.SugaredLogger
}

func New(cfg *config.Config, s store.Store, producer *events.EventProducer, opts ...Option) *Scheduler {
	scheduler := &Scheduler{
		cfg:      cfg,
		store:    s,
		producer: producer,
		log:      zap.S().Named("completion_scheduler"),
	}
	for _, o := range opts {
		o(scheduler)
	}
	return scheduler
}

type Option func(*Scheduler)

// WithAuditPublisher makes the scheduler stamp an audit entry for every
// completed file.
func WithAuditPublisher(p *audit.Publisher) Option {
	return func(s *Scheduler) {
		s.audits = p
	}
}

// WithExporter makes the scheduler drop a CSV export of the file's status
// rows into exportDir after completion.
func WithExporter(e *export.Exporter, exportDir string) Option {
	return func(s *Scheduler) {
		if exportDir != "" {
			s.exporter = e
			s.exportDir = exportDir
		}
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	ticker := jitterbug.New(s.cfg.Pipeline.SchedulerInterval, &jitterbug.Norm{Stdev: 30 * time.Millisecond, Mean: 0})
	defer ticker.Stop()

	s.log.Infow("completion scheduler started", "interval", s.cfg.Pipeline.SchedulerInterval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("completion scheduler stopped")
			return
		case <-ticker.C:
		}

		s.tick(ctx)
	}
}

// tick runs one pass of the state machine. Steps before the header update
// are read-only, so a failure anywhere leaves no partial state; every error
// is logged and ends the tick.
func (s *Scheduler) tick(ctx context.Context) {
	headerTable := s.cfg.Pipeline.HeaderTable
	statusTable := s.cfg.Pipeline.StatusTable

	// uninitialized system, nothing to do
	if !s.store.FileHeader().TableExists(ctx, headerTable) || !s.store.Workflow().TableExists(ctx, statusTable) {
		return
	}

	header, err := s.store.FileHeader().OldestProcessing(ctx, headerTable)
	if err != nil {
		if !errors.Is(err, store.ErrRecordNotFound) {
			s.log.Errorw("failed to find processing file", "error", err)
		}
		return
	}

	unfinished, err := s.store.Workflow().HasUnfinished(ctx, statusTable, header.ID)
	if err != nil {
		s.log.Errorw("failed to check file progress", "file_id", header.ID, "error", err)
		return
	}
	if unfinished {
		return
	}

	fileStatus, err := s.aggregate(ctx, statusTable, header.ID)
	if err != nil {
		s.log.Errorw("failed to aggregate file status", "file_id", header.ID, "error", err)
		return
	}

	if err := s.store.FileHeader().Complete(ctx, headerTable, header.ID, fileStatus); err != nil {
		s.log.Errorw("failed to complete file header", "file_id", header.ID, "error", err)
		return
	}

	s.log.Infow("file completed", "file_id", header.ID, "file_status", fileStatus)
	metrics.IncreaseFilesCompletedMetric(fileStatus)

	// the transition above is committed; notification and export failures
	// only get a log line and never roll it back
	s.notify(ctx, header.ID, fileStatus)
	s.downstream(ctx, header.ID, fileStatus)
}

// aggregate folds the per-record outcomes of a file into one file status:
// "fail" as soon as any record failed, "success" otherwise. The result does
// not depend on scan order.
func (s *Scheduler) aggregate(ctx context.Context, statusTable, fileID string) (string, error) {
	records, err := s.store.Workflow().ListByFileID(ctx, statusTable, fileID)
	if err != nil {
		return "", err
	}
	for _, record := range records {
		if IsFailStatus(record.FinalStatus) {
			return model.FileStatusFail, nil
		}
	}
	return model.FileStatusSuccess, nil
}

func (s *Scheduler) notify(ctx context.Context, fileID, fileStatus string) {
	if s.producer == nil {
		return
	}
	event := events.FileCompletedEvent{
		FileID:     fileID,
		FileStatus: fileStatus,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(event)
	if err != nil {
		s.log.Errorw("failed to encode completion event", "file_id", fileID, "error", err)
		return
	}
	if err := s.producer.Write(ctx, events.FileCompletedMessageKind, bytes.NewReader(body)); err != nil {
		s.log.Errorw("failed to emit completion event", "file_id", fileID, "error", err)
	}
}

func (s *Scheduler) downstream(ctx context.Context, fileID, fileStatus string) {
	if s.exporter != nil {
		outName := filepath.Join(s.exportDir, fileID+".csv")
		if err := s.exporter.WriteFile(ctx, s.cfg.Pipeline.StatusTable, fileID, outName); err != nil {
			s.log.Errorw("failed to export completed file", "file_id", fileID, "error", err)
		}
	}

	if s.audits != nil {
		entry := audit.Entry{
			ActivityType:   "file_completed",
			ResponseStatus: fileStatus,
			Remarks:        fmt.Sprintf("file %s promoted to %s", fileID, model.StageComplete),
		}
		if err := s.audits.Publish(ctx, entry); err != nil {
			s.log.Errorw("failed to publish completion audit entry", "file_id", fileID, "error", err)
		}
	}
}

// IsFailStatus reports whether a final_status denotes failure, case
// insensitively.
func IsFailStatus(status string) bool {
	return model.IsFailStatus(status)
}
