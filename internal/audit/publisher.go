package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dataforge/workflow-engine/internal/config"
	"github.com/dataforge/workflow-engine/internal/events"
	"github.com/dataforge/workflow-engine/internal/store"
	"github.com/dataforge/workflow-engine/internal/store/model"
	"github.com/dataforge/workflow-engine/pkg/metrics"
)

const truncationMarker = "..."

// Entry is one audit record. Remarks is the only unbounded field and the
// only one truncation may touch.
type Entry struct {
	UserID         string `json:"userId"`
	ActivityType   string `json:"activityType"`
	Endpoint       string `json:"endpoint"`
	RequestType    string `json:"requestType"`
	StatusCode     int    `json:"statusCode"`
	ResponseStatus string `json:"responseStatus"`
	Remarks        string `json:"remarks"`
}

// Publisher emits audit entries on the audit topic and persists them. The
// serialized message is bounded: entries above the limit get their remarks
// truncated before emission.
type Publisher struct {
	producer *events.EventProducer
	logs     store.AuditLog
	maxBytes int
	log      *zap.SugaredLogger
}

func NewPublisher(cfg *config.Config, producer *events.EventProducer, logs store.AuditLog) *Publisher {
	return &Publisher{
		producer: producer,
		logs:     logs,
		maxBytes: cfg.Audit.MaxMessageBytes,
		log:      zap.S().Named("audit_publisher"),
	}
}

func (p *Publisher) Publish(ctx context.Context, entry Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("serializing audit entry: %w", err)
	}

	if len(body) > p.maxBytes {
		truncated := Truncate(entry.Remarks, p.maxBytes, len(body))
		if truncated != "" {
			truncated += truncationMarker
		}
		entry.Remarks = truncated

		body, err = json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("serializing truncated audit entry: %w", err)
		}
		metrics.IncreaseAuditEntriesTruncatedMetric()
	}

	if p.producer != nil {
		if err := p.producer.Write(ctx, events.AuditMessageKind, bytes.NewReader(body)); err != nil {
			p.log.Errorw("failed to emit audit event", "error", err)
		}
	}

	if p.logs != nil {
		record := &model.AuditLog{
			UserID:         entry.UserID,
			ActivityType:   entry.ActivityType,
			Endpoint:       entry.Endpoint,
			RequestType:    entry.RequestType,
			StatusCode:     entry.StatusCode,
			ResponseStatus: entry.ResponseStatus,
			Remarks:        entry.Remarks,
		}
		if err := p.logs.Create(ctx, record); err != nil {
			return fmt.Errorf("persisting audit entry: %w", err)
		}
	}

	return nil
}

// Truncate shortens remarks so that an entry serialized to serializedLen
// bytes fits into maxBytes. The extra 5 bytes of headroom cover the "..."
// marker the caller appends, plus slack. When the overage is at least the
// whole remarks, the remarks are dropped entirely. The cut never splits a
// multi-byte UTF-8 sequence: the boundary backs off to the nearest rune
// start, which only shortens the result further.
func Truncate(remarks string, maxBytes int, serializedLen int) string {
	diff := serializedLen - maxBytes
	if diff <= 0 {
		return remarks
	}
	if diff >= len(remarks) {
		return ""
	}

	allowed := len(remarks) - (diff + 5)
	if allowed <= 0 {
		return ""
	}
	for allowed > 0 && !utf8.RuneStart(remarks[allowed]) {
		allowed--
	}
	return remarks[:allowed]
}
