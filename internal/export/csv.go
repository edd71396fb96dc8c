package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/thoas/go-funk"

	"github.com/dataforge/workflow-engine/internal/store"
	"github.com/dataforge/workflow-engine/internal/store/model"
)

// Identifier and bookkeeping columns that never appear in the export.
var excludedColumns = []string{
	"id",
	"organization_id",
	"file_id",
	"rule_status",
	"failed_validations",
	"final_status",
	"dataquality_status",
}

var validationColumns = []string{
	"failed_rule_names",
	"failed_column_names",
	"failed_error_messages",
	"failed_statuses",
}

// Exporter renders a file's status rows as CSV: one row per record, the
// repeated validation fields flattened into ";"-joined aggregate columns.
type Exporter struct {
	workflow store.Workflow
}

func NewExporter(workflow store.Workflow) *Exporter {
	return &Exporter{workflow: workflow}
}

// Write scans the file's records and writes the CSV document to out.
func (e *Exporter) Write(ctx context.Context, table string, fileID string, out io.Writer) error {
	records, err := e.workflow.ListByFileID(ctx, table, fileID)
	if err != nil {
		return fmt.Errorf("exporting file %s: %w", fileID, err)
	}

	columns := businessColumns(records)
	header := append(append([]string{}, columns...), validationColumns...)
	header = append(header, "final_status")

	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, record := range records {
		row := make([]string, 0, len(header))
		fields := recordFields(&record)
		for _, column := range columns {
			row = append(row, stringify(fields[column]))
		}

		validations := validationsOf(&record)
		row = append(row,
			joinField(validations, func(v model.FailedValidation) string { return v.RuleName }),
			joinField(validations, func(v model.FailedValidation) string { return v.ColumnName }),
			joinField(validations, func(v model.FailedValidation) string { return v.ErrorMessage }),
			joinField(validations, func(v model.FailedValidation) string { return v.Status }),
		)
		row = append(row, record.FinalStatus)

		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

// WriteFile renders the export into a file on disk.
func (e *Exporter) WriteFile(ctx context.Context, table string, fileID string, outName string) error {
	f, err := os.Create(outName)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	if err := e.Write(ctx, table, fileID, f); err != nil {
		return err
	}
	return f.Sync()
}

// businessColumns is the sorted union of exportable field names across all
// records, so records with differing attribute sets still line up.
func businessColumns(records model.WorkflowRecordList) []string {
	seen := map[string]bool{}
	for _, record := range records {
		for name := range recordFields(&record) {
			if !funk.ContainsString(excludedColumns, name) {
				seen[name] = true
			}
		}
	}

	columns := make([]string, 0, len(seen))
	for name := range seen {
		columns = append(columns, name)
	}
	sort.Strings(columns)
	return columns
}

func recordFields(record *model.WorkflowRecord) map[string]any {
	fields := map[string]any{
		"domain_name":  record.DomainName,
		"policy_id":    record.PolicyID,
		"uploaded_by":  record.UploadedBy,
		"created_date": record.CreatedDate,
	}
	for key, value := range record.Attrs {
		if !funk.ContainsString(excludedColumns, key) {
			fields[key] = value
		}
	}
	return fields
}

// validationsOf finds the record's failed validations either at the top
// level or nested one level under rule_status.
func validationsOf(record *model.WorkflowRecord) []model.FailedValidation {
	if validations := record.Validations(); len(validations) > 0 {
		return validations
	}

	ruleStatus := record.RuleStatusMap()
	if ruleStatus == nil {
		return nil
	}
	nested, found := ruleStatus["failed_validations"]
	if !found {
		return nil
	}
	raw, err := json.Marshal(nested)
	if err != nil {
		return nil
	}
	var validations []model.FailedValidation
	if err := json.Unmarshal(raw, &validations); err != nil {
		return nil
	}
	return validations
}

func joinField(validations []model.FailedValidation, pick func(model.FailedValidation) string) string {
	parts := make([]string, 0, len(validations))
	for _, v := range validations {
		parts = append(parts, pick(v))
	}
	return strings.Join(parts, ";")
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
