package model

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog is a persisted audit entry. Remarks may have been truncated by the
// publisher to honor the serialized-size bound.
type AuditLog struct {
	ID             uuid.UUID `gorm:"primaryKey;column:id;type:uuid"`
	UserID         string    `gorm:"column:user_id"`
	ActivityType   string    `gorm:"column:activity_type"`
	Endpoint       string    `gorm:"column:endpoint"`
	RequestType    string    `gorm:"column:request_type"`
	StatusCode     int       `gorm:"column:status_code"`
	ResponseStatus string    `gorm:"column:response_status"`
	Remarks        string    `gorm:"column:remarks"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
