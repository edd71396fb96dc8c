package events

// FileCompletedEvent is emitted after a file header has been promoted to
// COMPLETE. Emission is best effort; the stage transition is already
// committed when this event is produced.
type FileCompletedEvent struct {
	FileID     string `json:"file_id"`
	FileStatus string `json:"file_status"`
	OccurredAt string `json:"occurred_at"`
}

// AuditEvent mirrors the serialized audit entry published on the audit
// topic.
type AuditEvent struct {
	UserID         string `json:"userId"`
	ActivityType   string `json:"activityType"`
	Endpoint       string `json:"endpoint"`
	RequestType    string `json:"requestType"`
	StatusCode     int    `json:"statusCode"`
	ResponseStatus string `json:"responseStatus"`
	Remarks        string `json:"remarks"`
}
