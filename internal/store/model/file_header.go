package model

import (
	"encoding/json"
	"strings"
)

// FileProcessStage is the lifecycle state of an ingested file.
const (
	StageUnprocessed = "UNPROCESSED"
	StageProcessing  = "PROCESSING"
	StageComplete    = "COMPLETE"
)

// Aggregated file outcomes.
const (
	FileStatusSuccess = "success"
	FileStatusFail    = "fail"
)

// IsFailStatus reports whether a final_status denotes failure, case
// insensitively.
func IsFailStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "fail", "failed", "failure":
		return true
	default:
		return false
	}
}

// FileHeader is one row of the header table. There is exactly one header per
// ingested file. created_date is an ISO-8601 UTC string so that lexicographic
// ordering equals chronological ordering.
type FileHeader struct {
	ID           string `gorm:"primaryKey;column:id"`
	ProcessStage string `gorm:"column:process_stage"`
	FileStatus   string `gorm:"column:file_status"`
	CreatedDate  string `gorm:"column:created_date"`
	UpdatedDate  string `gorm:"column:updated_date"`
}

func (h FileHeader) String() string {
	val, _ := json.Marshal(h)
	return string(val)
}
