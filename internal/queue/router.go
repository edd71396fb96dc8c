package queue

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/dataforge/workflow-engine/internal/config"
	"github.com/dataforge/workflow-engine/pkg/metrics"
)

// Router forwards validated payloads to the next pipeline stage. It never
// returns errors to its callers: a payload that cannot be forwarded is
// logged and dropped, and redelivery is the queue infrastructure's concern,
// not this component's.
type Router struct {
	client *river.Client[pgx.Tx]
	cfg    *config.Config
	log    *zap.SugaredLogger
}

func NewRouter(client *river.Client[pgx.Tx], cfg *config.Config) *Router {
	return &Router{
		client: client,
		cfg:    cfg,
		log:    zap.S().Named("queue_router"),
	}
}

func (r *Router) ForwardRuleRequest(ctx context.Context, payload map[string]any) {
	r.forward(ctx, r.cfg.Pipeline.RuleRequestQueue, payload, func(data json.RawMessage) river.JobArgs {
		return RuleRequestArgs{Payload: data}
	})
}

func (r *Router) ForwardDataQualityRequest(ctx context.Context, payload map[string]any) {
	r.forward(ctx, r.cfg.Pipeline.DataQualityRequestQueue, payload, func(data json.RawMessage) river.JobArgs {
		return DataQualityRequestArgs{Payload: data}
	})
}

// forward gates on the data_entry envelope, serializes and enqueues. Every
// failure path is terminal for the payload: log, count, move on.
func (r *Router) forward(ctx context.Context, queue string, payload map[string]any, wrap func(json.RawMessage) river.JobArgs) {
	if _, found := payload["data_entry"]; !found {
		r.log.Infow("payload without data_entry, not forwarded", "queue", queue)
		metrics.IncreaseMessagesDroppedMetric(queue, string(DropMissingDataEntry))
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Errorw("failed to serialize payload", "queue", queue, "error", err)
		metrics.IncreaseMessagesDroppedMetric(queue, string(DropUnparseable))
		return
	}

	opts := insertOpts(queue)
	if _, err := r.client.Insert(ctx, wrap(data), &opts); err != nil {
		r.log.Errorw("failed to enqueue payload", "queue", queue, "error", err)
		metrics.IncreaseMessagesDroppedMetric(queue, string(DropHandlerFailed))
		return
	}

	metrics.IncreaseMessagesForwardedMetric(queue)
}
