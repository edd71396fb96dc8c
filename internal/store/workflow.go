package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dataforge/workflow-engine/internal/store/model"
)

// UpdateFields is the partial update applied to a workflow record. Nil
// members are left untouched. FailedValidations is appended to the stored
// list atomically, seeding an empty list when the attribute is absent.
type UpdateFields struct {
	RuleStatus        any
	FinalStatus       *string
	FailedValidations []model.FailedValidation
}

type Workflow interface {
	TableExists(ctx context.Context, table string) bool
	CreateTable(ctx context.Context, table string) error
	Create(ctx context.Context, table string, record *model.WorkflowRecord) error
	GetByID(ctx context.Context, table string, id string) (*model.WorkflowRecord, error)
	GetByFileID(ctx context.Context, table string, fileID string) (*model.WorkflowRecord, error)
	Update(ctx context.Context, table string, id string, fields UpdateFields) error
	Query(ctx context.Context, table string, filter *WorkflowQueryFilter, page *Pagination) (model.WorkflowRecordList, int, error)
	ListByFileID(ctx context.Context, table string, fileID string) (model.WorkflowRecordList, error)
	HasUnfinished(ctx context.Context, table string, fileID string) (bool, error)
}

type WorkflowStore struct {
	db *gorm.DB
}

// Make sure we conform to Workflow interface
var _ Workflow = (*WorkflowStore)(nil)

func NewWorkflowStore(db *gorm.DB) Workflow {
	return &WorkflowStore{db: db}
}

func (s *WorkflowStore) TableExists(ctx context.Context, table string) bool {
	return s.db.WithContext(ctx).Migrator().HasTable(table)
}

func (s *WorkflowStore) CreateTable(ctx context.Context, table string) error {
	if !validTableName(table) {
		return ErrInvalidTableName
	}

	stm := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		file_id TEXT,
		organization_id TEXT,
		domain_name TEXT,
		policy_id TEXT,
		uploaded_by TEXT,
		rule_status JSONB,
		final_status TEXT,
		failed_validations JSONB,
		created_date TEXT,
		attrs JSONB
	)`, table)

	if err := s.db.WithContext(ctx).Exec(stm).Error; err != nil {
		return fmt.Errorf("creating status table %s: %w", table, err)
	}

	return waitForTable(ctx, s.db, table)
}

func (s *WorkflowStore) Create(ctx context.Context, table string, record *model.WorkflowRecord) error {
	if record.CreatedDate == "" {
		record.CreatedDate = time.Now().UTC().Format(time.RFC3339)
	}
	result := s.db.WithContext(ctx).Table(table).Create(record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("creating workflow record: %w", result.Error)
	}
	return nil
}

func (s *WorkflowStore) GetByID(ctx context.Context, table string, id string) (*model.WorkflowRecord, error) {
	var record model.WorkflowRecord
	result := s.db.WithContext(ctx).Table(table).Where("id = ?", id).Take(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying workflow record: %w", result.Error)
	}
	return &record, nil
}

func (s *WorkflowStore) GetByFileID(ctx context.Context, table string, fileID string) (*model.WorkflowRecord, error) {
	var record model.WorkflowRecord
	result := s.db.WithContext(ctx).Table(table).Where("file_id = ?", fileID).Limit(1).Take(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying workflow record by file id: %w", result.Error)
	}
	return &record, nil
}

// Update applies the non-nil members of fields to the record. The
// failed_validations member is an append, not a replacement: the stored list
// is seeded to [] when absent and the new entries are concatenated in a
// single statement, so concurrent appenders never lose elements.
func (s *WorkflowStore) Update(ctx context.Context, table string, id string, fields UpdateFields) error {
	if !validTableName(table) {
		return ErrInvalidTableName
	}

	pgsql := s.db.Dialector.Name() == "postgres"

	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)

	if fields.RuleStatus != nil {
		encoded, err := json.Marshal(fields.RuleStatus)
		if err != nil {
			return fmt.Errorf("encoding rule_status: %w", err)
		}
		if pgsql {
			sets = append(sets, "rule_status = ?::jsonb")
		} else {
			sets = append(sets, "rule_status = ?")
		}
		args = append(args, string(encoded))
	}
	if fields.FinalStatus != nil {
		sets = append(sets, "final_status = ?")
		args = append(args, *fields.FinalStatus)
	}
	if len(fields.FailedValidations) > 0 {
		if pgsql {
			encoded, err := json.Marshal(fields.FailedValidations)
			if err != nil {
				return fmt.Errorf("encoding failed_validations: %w", err)
			}
			sets = append(sets, "failed_validations = COALESCE(failed_validations, '[]'::jsonb) || ?::jsonb")
			args = append(args, string(encoded))
		} else {
			// sqlite has no jsonb concat operator. json_insert with a
			// '$[#]' path appends one element, and chained path/value
			// pairs are applied left to right on the updated document.
			pairs := make([]string, 0, len(fields.FailedValidations))
			for _, v := range fields.FailedValidations {
				encoded, err := json.Marshal(v)
				if err != nil {
					return fmt.Errorf("encoding failed_validations: %w", err)
				}
				pairs = append(pairs, "'$[#]', json(?)")
				args = append(args, string(encoded))
			}
			sets = append(sets, fmt.Sprintf(
				"failed_validations = json_insert(COALESCE(failed_validations, '[]'), %s)",
				strings.Join(pairs, ", ")))
		}
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	stm := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", "))
	result := s.db.WithContext(ctx).Exec(stm, args...)
	if result.Error != nil {
		return fmt.Errorf("updating workflow record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Query scans every matching row, sorts the full set ascending by string id
// and only then applies pagination. The returned count is always the size of
// the full filtered set.
func (s *WorkflowStore) Query(ctx context.Context, table string, filter *WorkflowQueryFilter, page *Pagination) (model.WorkflowRecordList, int, error) {
	tx := s.db.WithContext(ctx).Table(table)
	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	var records model.WorkflowRecordList
	if err := tx.Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("scanning workflow records: %w", err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	total := len(records)

	if page == nil {
		return records, total, nil
	}

	start := (page.Page - 1) * page.Size
	if start < 0 || start >= total {
		return model.WorkflowRecordList{}, total, nil
	}
	end := start + page.Size
	if end > total {
		end = total
	}
	return records[start:end], total, nil
}

func (s *WorkflowStore) ListByFileID(ctx context.Context, table string, fileID string) (model.WorkflowRecordList, error) {
	var records model.WorkflowRecordList
	result := s.db.WithContext(ctx).Table(table).Where("file_id = ?", fileID).Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("scanning workflow records by file id: %w", result.Error)
	}
	return records, nil
}

// HasUnfinished reports whether any record of the file still has a blank
// final_status, meaning the pipeline has not finished with the file yet.
func (s *WorkflowStore) HasUnfinished(ctx context.Context, table string, fileID string) (bool, error) {
	var count int64
	result := s.db.WithContext(ctx).Table(table).
		Where("file_id = ?", fileID).
		Where("final_status IS NULL OR final_status = ''").
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("counting unfinished records: %w", result.Error)
	}
	return count > 0, nil
}
