package model

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// FailedValidation is one entry of a record's failed_validations list.
type FailedValidation struct {
	RuleName     string `json:"rule_name"`
	ColumnName   string `json:"column_name"`
	ErrorMessage string `json:"error_message"`
	Status       string `json:"status"`
}

// WorkflowRecord is one row of a status table. The fixed columns carry the
// pipeline bookkeeping; everything else the ingested record brought along
// lives in Attrs.
type WorkflowRecord struct {
	ID                string            `gorm:"primaryKey;column:id"`
	FileID            string            `gorm:"column:file_id"`
	OrganizationID    string            `gorm:"column:organization_id"`
	DomainName        string            `gorm:"column:domain_name"`
	PolicyID          string            `gorm:"column:policy_id"`
	UploadedBy        string            `gorm:"column:uploaded_by"`
	RuleStatus        datatypes.JSON    `gorm:"column:rule_status;type:jsonb"`
	FinalStatus       string            `gorm:"column:final_status"`
	FailedValidations datatypes.JSON    `gorm:"column:failed_validations;type:jsonb"`
	CreatedDate       string            `gorm:"column:created_date"`
	Attrs             datatypes.JSONMap `gorm:"column:attrs;type:jsonb"`
}

func (r WorkflowRecord) String() string {
	val, _ := json.Marshal(r)
	return string(val)
}

// RuleStatusMap decodes rule_status when it is a nested structure. A scalar
// or absent rule_status yields nil.
func (r *WorkflowRecord) RuleStatusMap() map[string]any {
	if len(r.RuleStatus) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(r.RuleStatus, &m); err != nil {
		return nil
	}
	return m
}

// Validations decodes the failed_validations list. An absent or malformed
// list yields nil.
func (r *WorkflowRecord) Validations() []FailedValidation {
	if len(r.FailedValidations) == 0 {
		return nil
	}
	var v []FailedValidation
	if err := json.Unmarshal(r.FailedValidations, &v); err != nil {
		return nil
	}
	return v
}

type WorkflowRecordList []WorkflowRecord
