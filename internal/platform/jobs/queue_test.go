package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestChannelQueue_EnqueueAndRun(t *testing.T) {
	q := NewChannelQueue(8)
	reg := NewRegistry()

	done := make(chan string, 1)
	reg.Register(TypePaymentRetry, func(_ context.Context, job Job) error {
		var payload struct {
			OrderID string `json:"order_id"`
		}
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return err
		}
		done <- payload.OrderID
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx, reg, zerolog.Nop())

	job, err := NewJob(TypePaymentRetry, map[string]string{"order_id": "ord-1"})
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case got := <-done:
		if got != "ord-1" {
			t.Errorf("expected order_id ord-1, got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("job was not dispatched within 1s")
	}
}

func TestRegistry_UnknownTypeDropped(t *testing.T) {
	reg := NewRegistry()
	job := Job{Type: "unknown.type"}
	if err := reg.Dispatch(context.Background(), job, zerolog.Nop()); err != nil {
		t.Fatalf("expected unknown job type to be dropped without error, got %v", err)
	}
}

func TestRegistry_HandlerErrorPropagates(t *testing.T) {
	reg := NewRegistry()
	wantErr := errors.New("gateway unavailable")
	reg.Register(TypePaymentRetry, func(context.Context, Job) error {
		return wantErr
	})

	err := reg.Dispatch(context.Background(), Job{Type: TypePaymentRetry}, zerolog.Nop())
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestChannelQueue_EnqueueRespectsContext(t *testing.T) {
	q := NewChannelQueue(1)
	ctx := context.Background()

	if err := q.Enqueue(ctx, Job{Type: TypeCartAbandon}); err != nil {
		t.Fatalf("first enqueue should succeed: %v", err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Enqueue(cancelled, Job{Type: TypeCartAbandon}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled on full queue, got %v", err)
	}
}
