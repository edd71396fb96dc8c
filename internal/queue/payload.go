package queue

import (
	"encoding/json"
)

// DropReason explains why an incoming message was discarded before any
// state mutation. The drop policy is a return value, not a thrown error, so
// it stays visible and testable.
type DropReason string

const (
	DropNone             DropReason = ""
	DropUnparseable      DropReason = "unparseable"
	DropNotObject        DropReason = "not_object"
	DropMissingDataEntry DropReason = "missing_data_entry"
	DropMissingID        DropReason = "missing_id"
	DropHandlerFailed    DropReason = "handler_failed"
)

// reservedWorkflowKeys are pipeline bookkeeping fields that never travel
// inside a data-quality request's data object.
var reservedWorkflowKeys = []string{
	"created_date",
	"domain_name",
	"failed_validations",
	"file_id",
	"final_status",
	"rule_status",
	"dataquality_status",
	"policy_id",
	"uploaded_by",
	"staging_id",
}

// ParsePayload decodes a raw message into a string-keyed map. Anything that
// is not a JSON object (arrays, scalars, garbage) yields a drop reason and a
// nil map.
func ParsePayload(raw []byte) (map[string]any, DropReason) {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, DropUnparseable
	}
	payload, ok := decoded.(map[string]any)
	if !ok {
		return nil, DropNotObject
	}
	return payload, DropNone
}

// SanitizeWorkflowFields strips the reserved bookkeeping keys from the
// record's field map. The map is edited in place and returned; callers hold
// the single source object and see the mutation.
func SanitizeWorkflowFields(fields map[string]any) map[string]any {
	for _, key := range reservedWorkflowKeys {
		delete(fields, key)
	}
	return fields
}

// BuildDataQualityPayload assembles the data-quality request envelope from a
// rule response and the record's stored fields. The identifying keys are
// copied from the rule response; a missing key is carried as an explicit
// null rather than omitted.
func BuildDataQualityPayload(ruleResponse map[string]any, workflowFields map[string]any) map[string]any {
	entry := map[string]any{}
	for _, key := range []string{"data_type", "domain_name", "file_id", "policy_id"} {
		entry[key] = ruleResponse[key]
	}
	entry["data"] = SanitizeWorkflowFields(workflowFields)
	return map[string]any{"data_entry": entry}
}
