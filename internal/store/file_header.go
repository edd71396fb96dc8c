package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dataforge/workflow-engine/internal/store/model"
)

type FileHeader interface {
	TableExists(ctx context.Context, table string) bool
	CreateTable(ctx context.Context, table string) error
	Create(ctx context.Context, table string, header *model.FileHeader) error
	Get(ctx context.Context, table string, id string) (*model.FileHeader, error)
	OldestProcessing(ctx context.Context, table string) (*model.FileHeader, error)
	Complete(ctx context.Context, table string, id string, fileStatus string) error
}

type FileHeaderStore struct {
	db *gorm.DB
}

// Make sure we conform to FileHeader interface
var _ FileHeader = (*FileHeaderStore)(nil)

func NewFileHeaderStore(db *gorm.DB) FileHeader {
	return &FileHeaderStore{db: db}
}

func (s *FileHeaderStore) TableExists(ctx context.Context, table string) bool {
	return s.db.WithContext(ctx).Migrator().HasTable(table)
}

func (s *FileHeaderStore) CreateTable(ctx context.Context, table string) error {
	if !validTableName(table) {
		return ErrInvalidTableName
	}

	stm := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		process_stage TEXT,
		file_status TEXT,
		created_date TEXT,
		updated_date TEXT
	)`, table)

	if err := s.db.WithContext(ctx).Exec(stm).Error; err != nil {
		return fmt.Errorf("creating header table %s: %w", table, err)
	}

	return waitForTable(ctx, s.db, table)
}

func (s *FileHeaderStore) Create(ctx context.Context, table string, header *model.FileHeader) error {
	if header.ProcessStage == "" {
		header.ProcessStage = model.StageUnprocessed
	}
	if header.CreatedDate == "" {
		header.CreatedDate = time.Now().UTC().Format(time.RFC3339)
	}
	result := s.db.WithContext(ctx).Table(table).Create(header)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("creating file header: %w", result.Error)
	}
	return nil
}

func (s *FileHeaderStore) Get(ctx context.Context, table string, id string) (*model.FileHeader, error) {
	var header model.FileHeader
	result := s.db.WithContext(ctx).Table(table).Where("id = ?", id).Take(&header)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying file header: %w", result.Error)
	}
	return &header, nil
}

// OldestProcessing returns the PROCESSING header with the smallest
// created_date under plain string comparison. created_date is an ISO-8601
// UTC string, so string order equals time order.
func (s *FileHeaderStore) OldestProcessing(ctx context.Context, table string) (*model.FileHeader, error) {
	var header model.FileHeader
	result := s.db.WithContext(ctx).Table(table).
		Where("process_stage = ?", model.StageProcessing).
		Order("created_date ASC").
		Limit(1).
		Take(&header)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying oldest processing header: %w", result.Error)
	}
	return &header, nil
}

// Complete promotes the header to COMPLETE with the aggregated file status.
// The update is conditional on the header row existing; a vanished row
// surfaces as ErrRecordNotFound instead of being created.
func (s *FileHeaderStore) Complete(ctx context.Context, table string, id string, fileStatus string) error {
	if !validTableName(table) {
		return ErrInvalidTableName
	}

	stm := fmt.Sprintf("UPDATE %s SET process_stage = ?, file_status = ?, updated_date = ? WHERE id = ?", table)
	result := s.db.WithContext(ctx).Exec(stm,
		model.StageComplete,
		fileStatus,
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if result.Error != nil {
		return fmt.Errorf("completing file header: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
