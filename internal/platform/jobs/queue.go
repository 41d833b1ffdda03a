package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Job types dispatched through the background queue.
const (
	TypePaymentRetry = "payment.retry"
	TypeCartAbandon  = "cart.abandon"
)

// Job is one unit of deferred work. Requests enqueue and return immediately;
// a worker consumes and executes. Handlers must tolerate redelivery.
type Job struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewJob builds a Job with the payload marshalled to JSON.
func NewJob(jobType string, payload interface{}) (Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal %s payload: %w", jobType, err)
	}
	return Job{Type: jobType, Payload: data, EnqueuedAt: time.Now().UTC()}, nil
}

// Queue publishes jobs for background execution.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Close() error
}

// HandlerFunc executes one job.
type HandlerFunc func(ctx context.Context, job Job) error

// Registry maps job types to handlers.
type Registry struct {
	handlers map[string]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

func (r *Registry) Register(jobType string, h HandlerFunc) {
	r.handlers[jobType] = h
}

// Dispatch runs the handler for the job's type. Unknown types are logged and
// dropped rather than redelivered forever.
func (r *Registry) Dispatch(ctx context.Context, job Job, logger zerolog.Logger) error {
	h, ok := r.handlers[job.Type]
	if !ok {
		logger.Warn().Str("job_type", job.Type).Msg("no handler for job type")
		return nil
	}
	if err := h(ctx, job); err != nil {
		logger.Error().Err(err).Str("job_type", job.Type).Msg("job failed")
		return err
	}
	logger.Info().Str("job_type", job.Type).Msg("job completed")
	return nil
}

// ChannelQueue is an in-process Queue for development and tests. Jobs are
// buffered on a channel and consumed by Run in the same process.
type ChannelQueue struct {
	ch chan Job
}

func NewChannelQueue(size int) *ChannelQueue {
	if size <= 0 {
		size = 256
	}
	return &ChannelQueue{ch: make(chan Job, size)}
}

func (q *ChannelQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *ChannelQueue) Close() error {
	close(q.ch)
	return nil
}

// Run consumes jobs until the context is cancelled or the queue is closed.
func (q *ChannelQueue) Run(ctx context.Context, reg *Registry, logger zerolog.Logger) error {
	for {
		select {
		case job, ok := <-q.ch:
			if !ok {
				return nil
			}
			_ = reg.Dispatch(ctx, job, logger)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
