package materializer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dataforge/workflow-engine/pkg/metrics"
)

var (
	ErrTableNotFound     = errors.New("domain table does not exist")
	ErrInvalidIdentifier = errors.New("invalid sql identifier")
)

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// UnknownColumnsError is returned when an incoming row carries columns the
// live table does not have. The whole insert is aborted; no partial row is
// written.
type UnknownColumnsError struct {
	Table   string
	Columns []string
}

func (e *UnknownColumnsError) Error() string {
	return fmt.Sprintf("table %s has no columns named: %s", e.Table, strings.Join(e.Columns, ", "))
}

// Materializer writes validated records into dynamically shaped relational
// tables, one table per business domain.
type Materializer struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Materializer {
	return &Materializer{db: db}
}

// EnsureTable creates the domain table from the shape of the given row if it
// does not exist yet. The first writer's shape wins permanently.
func (m *Materializer) EnsureTable(ctx context.Context, domain string, row map[string]any) error {
	if !identifierRe.MatchString(domain) {
		return ErrInvalidIdentifier
	}
	for name := range row {
		if !identifierRe.MatchString(strings.TrimSpace(name)) {
			return ErrInvalidIdentifier
		}
	}

	ddl := createTableDDL(domain, InferSchema(row))
	if err := m.db.WithContext(ctx).Exec(ddl).Error; err != nil {
		return fmt.Errorf("creating domain table %s: %w", domain, err)
	}
	return nil
}

// Insert writes one row into the domain table under a fresh UUID id. The
// table must already exist; every incoming column must match a live column
// (trimmed, case-insensitive) or the whole insert fails with the offending
// names.
func (m *Materializer) Insert(ctx context.Context, domain string, row map[string]any) (string, error) {
	if !identifierRe.MatchString(domain) {
		return "", ErrInvalidIdentifier
	}

	live, err := m.liveColumns(ctx, domain)
	if err != nil {
		return "", err
	}
	if len(live) == 0 {
		return "", ErrTableNotFound
	}

	liveNames := make([]string, 0, len(live))
	for name := range live {
		liveNames = append(liveNames, name)
	}

	unknown := []string{}
	normalized := map[string]any{}
	for name, value := range row {
		cleaned := strings.ToLower(strings.TrimSpace(name))
		// auto-managed timestamps are never caller inputs
		if cleaned == "created_date" || cleaned == "updated_date" {
			continue
		}
		if !funk.ContainsString(liveNames, cleaned) {
			unknown = append(unknown, strings.TrimSpace(name))
			continue
		}
		normalized[cleaned] = NormalizeValue(live[cleaned], value)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return "", &UnknownColumnsError{Table: domain, Columns: unknown}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	normalized["id"] = id
	normalized["created_date"] = now
	normalized["updated_date"] = now

	names := make([]string, 0, len(normalized))
	for name := range normalized {
		names = append(names, name)
	}
	sort.Strings(names)

	placeholders := make([]string, 0, len(names))
	args := make([]any, 0, len(names))
	for _, name := range names {
		placeholders = append(placeholders, "?")
		args = append(args, normalized[name])
	}

	stm := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		domain, strings.Join(names, ", "), strings.Join(placeholders, ", "))
	if err := m.db.WithContext(ctx).Exec(stm, args...).Error; err != nil {
		return "", fmt.Errorf("inserting into domain table %s: %w", domain, err)
	}

	metrics.IncreaseRecordsMaterializedMetric(domain)
	return id, nil
}

// ArchiveAndMarkDeleted performs a soft delete: an archive row referencing
// the original record is appended to <domain>_archive (created lazily) and
// the original row is flagged is_archived.
func (m *Materializer) ArchiveAndMarkDeleted(ctx context.Context, domain string, id string, message string) error {
	if !identifierRe.MatchString(domain) {
		return ErrInvalidIdentifier
	}

	if err := m.db.WithContext(ctx).Exec(archiveTableDDL(domain)).Error; err != nil {
		return fmt.Errorf("creating archive table for %s: %w", domain, err)
	}

	stm := fmt.Sprintf("INSERT INTO %s_archive (id, %s_id, message, archived_at) VALUES (?, ?, ?, ?)",
		domain, domain)
	if err := m.db.WithContext(ctx).Exec(stm, uuid.NewString(), id, message, time.Now().UTC()).Error; err != nil {
		return fmt.Errorf("inserting archive row for %s: %w", domain, err)
	}

	stm = fmt.Sprintf("UPDATE %s SET is_archived = TRUE, updated_date = ? WHERE id = ?", domain)
	result := m.db.WithContext(ctx).Exec(stm, time.Now().UTC(), id)
	if result.Error != nil {
		return fmt.Errorf("marking %s row deleted: %w", domain, result.Error)
	}
	if result.RowsAffected == 0 {
		zap.S().Named("materializer").Warnw("archived a row that no longer exists in the domain table",
			"domain", domain, "id", id)
	}

	metrics.IncreaseRecordsArchivedMetric(domain)
	return nil
}

// CASUpdateColumn sets column to toValue only when its current value equals
// fromValue. A stale fromValue means zero rows change; the caller is not
// told which outcome happened.
func (m *Materializer) CASUpdateColumn(ctx context.Context, domain string, column string, id string, fromValue string, toValue string) error {
	if !identifierRe.MatchString(domain) || !identifierRe.MatchString(column) {
		return ErrInvalidIdentifier
	}

	stm := fmt.Sprintf("UPDATE %s SET %s = ?, updated_date = ? WHERE id = ? AND %s = ?",
		domain, column, column)
	if err := m.db.WithContext(ctx).Exec(stm, toValue, time.Now().UTC(), id, fromValue).Error; err != nil {
		return fmt.Errorf("cas update on %s.%s: %w", domain, column, err)
	}
	return nil
}

// liveColumns reads the authoritative column set of the table from the
// catalog. created_date and updated_date are auto-managed, so they are not
// part of the set callers must match.
func (m *Materializer) liveColumns(ctx context.Context, table string) (map[string]ColumnKind, error) {
	type columnRow struct {
		ColumnName string
		DataType   string
	}

	var rows []columnRow
	err := m.db.WithContext(ctx).
		Raw("SELECT column_name, data_type FROM information_schema.columns WHERE table_name = ?", table).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}

	columns := make(map[string]ColumnKind, len(rows))
	for _, row := range rows {
		name := strings.ToLower(row.ColumnName)
		if name == "created_date" || name == "updated_date" {
			continue
		}
		columns[name] = kindFromDataType(row.DataType)
	}
	return columns, nil
}
