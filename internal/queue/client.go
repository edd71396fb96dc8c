package queue

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/dataforge/workflow-engine/internal/config"
)

// NewInsertClient returns a river client that only enqueues. The router
// forwards on it; it is never started.
func NewInsertClient(pool *pgxpool.Pool) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), &river.Config{})
}

// NewConsumerClient builds the working client with one worker per response
// stage. Every queue runs a single in-flight message: ordering within a
// queue is still not guaranteed, but a slow handler never piles up
// concurrent mutations of the same status rows from one queue.
func NewConsumerClient(pool *pgxpool.Pool, cfg *config.Config, deps WorkerDeps) (*river.Client[pgx.Tx], error) {
	workers := river.NewWorkers()
	river.AddWorker(workers, NewIngestionWorker(deps))
	river.AddWorker(workers, NewRuleResponseWorker(deps))
	river.AddWorker(workers, NewDataQualityResponseWorker(deps))
	river.AddWorker(workers, NewRemediationResponseWorker(deps))

	return river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			cfg.Pipeline.IngestionQueue:           {MaxWorkers: 1},
			cfg.Pipeline.RuleResponseQueue:        {MaxWorkers: 1},
			cfg.Pipeline.DataQualityResponseQueue: {MaxWorkers: 1},
			cfg.Pipeline.RemediationQueue:         {MaxWorkers: 1},
		},
		Workers: workers,
	})
}
