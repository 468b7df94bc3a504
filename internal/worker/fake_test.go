package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Courier/internal/canvas"
	"github.com/shaiso/Courier/internal/domain"
	"github.com/shaiso/Courier/internal/mq"
	"github.com/shaiso/Courier/internal/task"
)

// journal записывает действия с брокером в порядке их выполнения.
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

func (j *journal) count(event string) int {
	n := 0
	for _, e := range j.list() {
		if e == event {
			n++
		}
	}
	return n
}

// fakeAck - amqp.Acknowledger, пишущий в journal.
type fakeAck struct {
	j *journal
}

func (a *fakeAck) Ack(uint64, bool) error {
	a.j.add("ack")
	return nil
}

func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	if requeue {
		a.j.add("requeue")
	} else {
		a.j.add("reject")
	}
	return nil
}

func (a *fakeAck) Reject(_ uint64, requeue bool) error {
	return a.Nack(0, false, requeue)
}

// fakeBroker - Broker в памяти.
type fakeBroker struct {
	j *journal

	mu         sync.Mutex
	declared   []string
	published  []*domain.Envelope
	publishErr error
	prefetch   int

	deliveries chan *mq.Delivery
	errs       chan error
}

func newFakeBroker(j *journal) *fakeBroker {
	return &fakeBroker{
		j:          j,
		deliveries: make(chan *mq.Delivery, 64),
		errs:       make(chan error, 1),
	}
}

func (b *fakeBroker) Declare(_ context.Context, routingKey string) (mq.QueueHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.declared = append(b.declared, routingKey)
	return mq.QueueHandle{Name: routingKey}, nil
}

func (b *fakeBroker) Publish(_ context.Context, env *domain.Envelope, routingKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		b.j.add("publish-failed")
		return b.publishErr
	}
	copied := *env
	copied.RoutingKey = routingKey
	b.published = append(b.published, &copied)
	b.j.add("publish:%s", routingKey)
	return nil
}

func (b *fakeBroker) Consume(ctx context.Context, _ []string, prefetch int) (<-chan *mq.Delivery, <-chan error) {
	b.mu.Lock()
	b.prefetch = prefetch
	b.mu.Unlock()

	out := make(chan *mq.Delivery)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-b.errs:
				errCh <- err
				return
			case d := <-b.deliveries:
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, errCh
}

func (b *fakeBroker) publishedEnvelopes() []*domain.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*domain.Envelope(nil), b.published...)
}

// testEnvelope строит envelope через canvas.
func testEnvelope(t *testing.T, sig canvas.Signature) *domain.Envelope {
	t.Helper()
	env, err := canvas.ToEnvelope(sig)
	if err != nil {
		t.Fatalf("ToEnvelope: %v", err)
	}
	return env
}

func newTestDelivery(j *journal, queue string, env *domain.Envelope) *mq.Delivery {
	return mq.NewDelivery(queue, env, amqp.Delivery{
		Acknowledger: &fakeAck{j: j},
		DeliveryTag:  1,
	})
}

// newCountedDelivery - delivery из quorum-очереди с x-delivery-count.
func newCountedDelivery(j *journal, queue string, env *domain.Envelope) *mq.Delivery {
	return mq.NewDelivery(queue, env, amqp.Delivery{
		Acknowledger: &fakeAck{j: j},
		DeliveryTag:  1,
		Headers:      amqp.Table{"x-delivery-count": int64(0)},
	})
}

func newTestWorker(t *testing.T, b *fakeBroker, reg *task.Registry, mutate func(*Config)) *Worker {
	t.Helper()
	cfg := Config{
		Broker:   b,
		Registry: reg,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

// waitFor ждёт выполнения условия.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func intPtr(n int) *int { return &n }
