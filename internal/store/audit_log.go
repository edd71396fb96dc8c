package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dataforge/workflow-engine/internal/store/model"
)

type AuditLog interface {
	Create(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, limit int) ([]model.AuditLog, error)
}

type AuditLogStore struct {
	db *gorm.DB
}

// Make sure we conform to AuditLog interface
var _ AuditLog = (*AuditLogStore)(nil)

func NewAuditLogStore(db *gorm.DB) AuditLog {
	return &AuditLogStore{db: db}
}

func (s *AuditLogStore) Create(ctx context.Context, entry *model.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("creating audit log: %w", err)
	}
	return nil
}

func (s *AuditLogStore) List(ctx context.Context, limit int) ([]model.AuditLog, error) {
	var entries []model.AuditLog
	tx := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("listing audit logs: %w", err)
	}
	return entries, nil
}
