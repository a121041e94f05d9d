package redis

import (
	"context"
	"time"

	"github.com/jmobrien1/mdraft/internal/domain"
	"github.com/jmobrien1/mdraft/internal/domain/ports/adapter"
)

var _ adapter.TaskQueue = (*TaskQueue)(nil)

// TaskQueue is the broker between intake and the workers: one redis list per
// priority class, LPUSH to enqueue, BRPOP to claim. BRPOP's key ordering
// gives strict priority without any coordination on the worker side.
type TaskQueue struct {
	client RedisClient
}

func NewTaskQueue(client RedisClient) *TaskQueue {
	return &TaskQueue{client: client}
}

func (q *TaskQueue) Enqueue(ctx context.Context, queue, jobID string) error {
	if err := q.client.LPush(ctx, queue, jobID); err != nil {
		return domain.ErrQueueUnavailable
	}
	return nil
}

func (q *TaskQueue) Dequeue(ctx context.Context, timeout time.Duration, queues ...string) (string, string, error) {
	res, err := q.client.BRPop(ctx, timeout, queues...)
	if err != nil {
		if IsNil(err) {
			return "", "", domain.ErrNotFound
		}
		return "", "", err
	}
	// BRPop returns [key, value].
	if len(res) != 2 {
		return "", "", domain.ErrNotFound
	}
	return res[0], res[1], nil
}

// Depth reports the pending task count of a queue, for gauges.
func (q *TaskQueue) Depth(ctx context.Context, queue string) (int64, error) {
	return q.client.LLen(ctx, queue)
}
