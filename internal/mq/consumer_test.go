package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// --- Consume Tests ---

func TestConsume_FanIn(t *testing.T) {
	ch := newFakeChannel()
	ch.consumers["a"] = make(chan amqp.Delivery, 1)
	ch.consumers["b"] = make(chan amqp.Delivery, 1)

	g := NewGateway(newFakeTransport(ch), GatewayConfig{Mode: ModeWorker})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, errs := g.Consume(ctx, []string{"a", "b"}, 10)

	ack := &fakeAck{}
	for i, q := range []string{"a", "b"} {
		msg, _ := Encode(testEnvelope())
		ch.consumers[q] <- amqp.Delivery{Body: msg.Body, Headers: msg.Headers, Acknowledger: ack, DeliveryTag: uint64(i + 1)}
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case d := <-deliveries:
			seen[d.Queue] = true
			if d.Envelope.TaskName != "add" {
				t.Errorf("unexpected task %s", d.Envelope.TaskName)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}

	if !seen["a"] || !seen["b"] {
		t.Errorf("expected deliveries from both queues, got %v", seen)
	}

	cancel()

	// После отмены поток закрывается без ошибки
	for range deliveries {
	}
	if err, ok := <-errs; ok && err != nil {
		t.Errorf("expected no error on cancel, got %v", err)
	}

	if ch.qos != 10 {
		t.Errorf("expected prefetch 10, got %d", ch.qos)
	}
}

func TestConsume_MalformedRejected(t *testing.T) {
	ch := newFakeChannel()
	ch.consumers["a"] = make(chan amqp.Delivery, 2)

	g := NewGateway(newFakeTransport(ch), GatewayConfig{Mode: ModeWorker})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, _ := g.Consume(ctx, []string{"a"}, 1)

	ack := &fakeAck{}
	ch.consumers["a"] <- amqp.Delivery{Body: []byte("garbage"), Acknowledger: ack, DeliveryTag: 1}
	msg, _ := Encode(testEnvelope())
	ch.consumers["a"] <- amqp.Delivery{Body: msg.Body, Acknowledger: ack, DeliveryTag: 2}

	select {
	case d := <-deliveries:
		if d.Envelope.ID != "id-1" {
			t.Errorf("expected valid envelope, got %+v", d.Envelope)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	ack.mu.Lock()
	defer ack.mu.Unlock()
	if len(ack.nacks) != 1 || ack.nacks[0] != 1 || ack.requeues[0] {
		t.Errorf("malformed message should be rejected without requeue, got %v %v", ack.nacks, ack.requeues)
	}
}

func TestConsume_TransportFatal(t *testing.T) {
	tr := newFakeTransport(newFakeChannel())
	tr.err = errors.New("connection refused")

	g := NewGateway(tr, GatewayConfig{
		Mode:             ModeWorker,
		ReconnectTimeout: 50 * time.Millisecond,
	})
	g.retryInterval = 10 * time.Millisecond

	deliveries, errs := g.Consume(context.Background(), []string{"a"}, 1)

	select {
	case err := <-errs:
		if !errors.Is(err, ErrTransportFatal) {
			t.Errorf("expected ErrTransportFatal, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected fatal transport error")
	}

	if _, ok := <-deliveries; ok {
		t.Error("deliveries channel should be closed")
	}
}

func TestConsume_RestartsAfterSubscriptionClosed(t *testing.T) {
	ch := newFakeChannel()
	first := make(chan amqp.Delivery)
	ch.consumers["a"] = first

	tr := newFakeTransport(ch)
	g := NewGateway(tr, GatewayConfig{Mode: ModeWorker})
	g.retryInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, _ := g.Consume(ctx, []string{"a"}, 1)

	// Подписка закрывается, как при разрыве канала
	second := make(chan amqp.Delivery, 1)
	ch.mu.Lock()
	ch.consumers["a"] = second
	ch.mu.Unlock()
	close(first)

	msg, _ := Encode(testEnvelope())
	second <- amqp.Delivery{Body: msg.Body, Acknowledger: &fakeAck{}, DeliveryTag: 1}

	select {
	case d := <-deliveries:
		if d.Queue != "a" {
			t.Errorf("expected queue a, got %s", d.Queue)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not restart")
	}
}
