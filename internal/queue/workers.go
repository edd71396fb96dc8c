package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/dataforge/workflow-engine/internal/config"
	"github.com/dataforge/workflow-engine/internal/remediation"
	"github.com/dataforge/workflow-engine/internal/store"
	"github.com/dataforge/workflow-engine/internal/store/model"
	"github.com/dataforge/workflow-engine/pkg/metrics"
)

// RecordMaterializer lands a finished record's business fields in its
// domain table.
type RecordMaterializer interface {
	EnsureTable(ctx context.Context, domain string, row map[string]any) error
	Insert(ctx context.Context, domain string, row map[string]any) (string, error)
}

// WorkerDeps are the collaborators shared by the stage workers.
type WorkerDeps struct {
	Cfg          *config.Config
	Store        store.Store
	Router       *Router
	Remediation  *remediation.Processor
	Materializer RecordMaterializer
}

// Workers always return nil from Work: a message that cannot be handled is
// logged and lost. Poison messages must never crash or stall a consumer.

type IngestionWorker struct {
	river.WorkerDefaults[IngestionArgs]
	deps WorkerDeps
	log  *zap.SugaredLogger
}

func NewIngestionWorker(deps WorkerDeps) *IngestionWorker {
	return &IngestionWorker{deps: deps, log: zap.S().Named("ingestion_worker")}
}

func (w *IngestionWorker) Work(ctx context.Context, job *river.Job[IngestionArgs]) error {
	metrics.IncreaseMessagesConsumedMetric(KindIngestion)

	payload, reason := ParsePayload(job.Args.Payload)
	if reason != DropNone {
		w.log.Warnw("dropping ingestion message", "reason", reason)
		metrics.IncreaseMessagesDroppedMetric(KindIngestion, string(reason))
		return nil
	}

	w.recordIngestion(ctx, payload)
	w.deps.Router.ForwardRuleRequest(ctx, payload)
	return nil
}

// recordIngestion registers the incoming record in the status table so the
// completion detector can account for it. Failures here do not stop the
// forward: the record is simply invisible to completion tracking.
func (w *IngestionWorker) recordIngestion(ctx context.Context, payload map[string]any) {
	entry, ok := payload["data_entry"].(map[string]any)
	if !ok {
		return
	}
	fileID := stringField(entry, "file_id")
	if fileID == "" {
		return
	}

	id := stringField(entry, "staging_id")
	if id == "" {
		id = uuid.NewString()
	}

	record := &model.WorkflowRecord{
		ID:             id,
		FileID:         fileID,
		OrganizationID: stringField(entry, "organization_id"),
		DomainName:     stringField(entry, "domain_name"),
		PolicyID:       stringField(entry, "policy_id"),
		UploadedBy:     stringField(entry, "uploaded_by"),
	}
	if data, ok := entry["data"].(map[string]any); ok {
		record.Attrs = data
	}

	err := w.deps.Store.Workflow().Create(ctx, w.deps.Cfg.Pipeline.StatusTable, record)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			w.log.Debugw("workflow record already recorded", "id", id)
			return
		}
		w.log.Errorw("failed to record ingestion", "id", id, "error", err)
	}
}

type RuleResponseWorker struct {
	river.WorkerDefaults[RuleResponseArgs]
	deps WorkerDeps
	log  *zap.SugaredLogger
}

func NewRuleResponseWorker(deps WorkerDeps) *RuleResponseWorker {
	return &RuleResponseWorker{deps: deps, log: zap.S().Named("rule_response_worker")}
}

func (w *RuleResponseWorker) Work(ctx context.Context, job *river.Job[RuleResponseArgs]) error {
	metrics.IncreaseMessagesConsumedMetric(KindRuleResponse)

	payload, reason := ParsePayload(job.Args.Payload)
	if reason != DropNone {
		w.log.Warnw("dropping rule response", "reason", reason)
		metrics.IncreaseMessagesDroppedMetric(KindRuleResponse, string(reason))
		return nil
	}

	id := stringField(payload, "id")
	if id == "" {
		w.log.Warnw("dropping rule response without record id")
		metrics.IncreaseMessagesDroppedMetric(KindRuleResponse, string(DropMissingID))
		return nil
	}

	fields := updateFieldsFromPayload(payload)
	table := w.deps.Cfg.Pipeline.StatusTable
	if err := w.deps.Store.Workflow().Update(ctx, table, id, fields); err != nil {
		w.log.Errorw("failed to apply rule response", "id", id, "error", err)
		metrics.IncreaseMessagesDroppedMetric(KindRuleResponse, string(DropHandlerFailed))
		return nil
	}

	// the data-quality stage only runs for records the rule stage did not
	// already finish; a record finished here lands in its domain table
	// directly
	switch {
	case w.deps.Cfg.Pipeline.DataQualityEnabled && fields.FinalStatus == nil:
		w.forwardDataQuality(ctx, payload, id)
	case fields.FinalStatus != nil && !model.IsFailStatus(*fields.FinalStatus):
		materializeRecord(ctx, w.deps, w.log, id)
	}
	return nil
}

func (w *RuleResponseWorker) forwardDataQuality(ctx context.Context, ruleResponse map[string]any, id string) {
	record, err := w.deps.Store.Workflow().GetByID(ctx, w.deps.Cfg.Pipeline.StatusTable, id)
	if err != nil {
		w.log.Errorw("failed to load record for data-quality request", "id", id, "error", err)
		return
	}

	payload := BuildDataQualityPayload(ruleResponse, workflowFieldsMap(record))
	w.deps.Router.ForwardDataQualityRequest(ctx, payload)
}

type DataQualityResponseWorker struct {
	river.WorkerDefaults[DataQualityResponseArgs]
	deps WorkerDeps
	log  *zap.SugaredLogger
}

func NewDataQualityResponseWorker(deps WorkerDeps) *DataQualityResponseWorker {
	return &DataQualityResponseWorker{deps: deps, log: zap.S().Named("dq_response_worker")}
}

func (w *DataQualityResponseWorker) Work(ctx context.Context, job *river.Job[DataQualityResponseArgs]) error {
	metrics.IncreaseMessagesConsumedMetric(KindDataQualityResponse)

	payload, reason := ParsePayload(job.Args.Payload)
	if reason != DropNone {
		w.log.Warnw("dropping data-quality response", "reason", reason)
		metrics.IncreaseMessagesDroppedMetric(KindDataQualityResponse, string(reason))
		return nil
	}

	id := stringField(payload, "id")
	if id == "" {
		w.log.Warnw("dropping data-quality response without record id")
		metrics.IncreaseMessagesDroppedMetric(KindDataQualityResponse, string(DropMissingID))
		return nil
	}

	fields := updateFieldsFromPayload(payload)
	table := w.deps.Cfg.Pipeline.StatusTable
	if err := w.deps.Store.Workflow().Update(ctx, table, id, fields); err != nil {
		w.log.Errorw("failed to apply data-quality response", "id", id, "error", err)
		metrics.IncreaseMessagesDroppedMetric(KindDataQualityResponse, string(DropHandlerFailed))
		return nil
	}

	// a record that passed the whole pipeline lands in its domain table; the
	// status above is already committed, a failing insert only loses the row
	// from the relational sink
	if fields.FinalStatus != nil && !model.IsFailStatus(*fields.FinalStatus) {
		materializeRecord(ctx, w.deps, w.log, id)
	}
	return nil
}

// materializeRecord lands a finished record in its domain table. Failures
// are logged only: the success status is already committed and there is no
// compensating write.
func materializeRecord(ctx context.Context, deps WorkerDeps, log *zap.SugaredLogger, id string) {
	if deps.Materializer == nil {
		return
	}

	record, err := deps.Store.Workflow().GetByID(ctx, deps.Cfg.Pipeline.StatusTable, id)
	if err != nil {
		log.Errorw("failed to load record for materialization", "id", id, "error", err)
		return
	}

	domain, row, ok := materializableRow(record)
	if !ok {
		return
	}

	if err := deps.Materializer.EnsureTable(ctx, domain, row); err != nil {
		log.Errorw("failed to ensure domain table", "domain", domain, "id", id, "error", err)
		return
	}
	if _, err := deps.Materializer.Insert(ctx, domain, row); err != nil {
		log.Errorw("failed to materialize record", "domain", domain, "id", id, "error", err)
	}
}

// materializableRow extracts the business fields a finished record
// contributes to its domain table. Records without a domain or without
// business fields have nothing to land.
func materializableRow(record *model.WorkflowRecord) (string, map[string]any, bool) {
	if record.DomainName == "" || len(record.Attrs) == 0 {
		return "", nil, false
	}
	row := make(map[string]any, len(record.Attrs))
	for key, value := range record.Attrs {
		row[key] = value
	}
	SanitizeWorkflowFields(row)
	if len(row) == 0 {
		return "", nil, false
	}
	return record.DomainName, row, true
}

type RemediationResponseWorker struct {
	river.WorkerDefaults[RemediationResponseArgs]
	deps WorkerDeps
	log  *zap.SugaredLogger
}

func NewRemediationResponseWorker(deps WorkerDeps) *RemediationResponseWorker {
	return &RemediationResponseWorker{deps: deps, log: zap.S().Named("remediation_response_worker")}
}

func (w *RemediationResponseWorker) Work(ctx context.Context, job *river.Job[RemediationResponseArgs]) error {
	metrics.IncreaseMessagesConsumedMetric(KindRemediationResponse)

	payload, reason := ParsePayload(job.Args.Payload)
	if reason != DropNone {
		w.log.Warnw("dropping remediation response", "reason", reason)
		metrics.IncreaseMessagesDroppedMetric(KindRemediationResponse, string(reason))
		return nil
	}

	data, ok := payload["data"].(map[string]any)
	if !ok {
		w.log.Warnw("dropping remediation response without data object")
		metrics.IncreaseMessagesDroppedMetric(KindRemediationResponse, string(DropNotObject))
		return nil
	}

	if err := w.deps.Remediation.Process(ctx, data); err != nil {
		w.log.Errorw("failed to process remediation", "error", err)
		metrics.IncreaseMessagesDroppedMetric(KindRemediationResponse, string(DropHandlerFailed))
	}
	return nil
}

// updateFieldsFromPayload extracts the partial status update a response
// message carries.
func updateFieldsFromPayload(payload map[string]any) store.UpdateFields {
	fields := store.UpdateFields{}
	if rs, found := payload["rule_status"]; found && rs != nil {
		fields.RuleStatus = rs
	}
	if fs, ok := payload["final_status"].(string); ok && fs != "" {
		fields.FinalStatus = &fs
	}
	fields.FailedValidations = decodeValidations(payload["failed_validations"])
	return fields
}

func decodeValidations(v any) []model.FailedValidation {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var validations []model.FailedValidation
	if err := json.Unmarshal(raw, &validations); err != nil {
		return nil
	}
	return validations
}

// workflowFieldsMap flattens a stored record back into the single map the
// data-quality payload builder edits.
func workflowFieldsMap(record *model.WorkflowRecord) map[string]any {
	fields := map[string]any{
		"staging_id":      record.ID,
		"file_id":         record.FileID,
		"organization_id": record.OrganizationID,
		"domain_name":     record.DomainName,
		"policy_id":       record.PolicyID,
		"uploaded_by":     record.UploadedBy,
		"final_status":    record.FinalStatus,
		"created_date":    record.CreatedDate,
	}
	if len(record.RuleStatus) > 0 {
		fields["rule_status"] = json.RawMessage(record.RuleStatus)
	}
	if len(record.FailedValidations) > 0 {
		fields["failed_validations"] = json.RawMessage(record.FailedValidations)
	}
	for key, value := range record.Attrs {
		fields[key] = value
	}
	return fields
}

func stringField(m map[string]any, key string) string {
	v, found := m[key]
	if !found || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
