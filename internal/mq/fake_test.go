package mq

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeChannel - in-memory реализация Channel.
type fakeChannel struct {
	mu sync.Mutex

	queueDeclares    map[string]int
	queueArgs        map[string]amqp.Table
	exchangeDeclares map[string]int
	binds            []string
	published        []fakePublish
	cancelled        []string
	qos              int

	declareDelay time.Duration
	declareErr   error
	publishBlock bool

	consumers map[string]chan amqp.Delivery
}

type fakePublish struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		queueDeclares:    make(map[string]int),
		queueArgs:        make(map[string]amqp.Table),
		exchangeDeclares: make(map[string]int),
		consumers:        make(map[string]chan amqp.Delivery),
	}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchangeDeclares[name]++
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if f.declareDelay > 0 {
		time.Sleep(f.declareDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.queueDeclares[name]++
	if f.declareErr != nil {
		return amqp.Queue{}, f.declareErr
	}
	f.queueArgs[name] = args
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binds = append(f.binds, exchange+"/"+key+"->"+name)
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.publishBlock {
		<-ctx.Done()
		return ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, fakePublish{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.qos = prefetchCount
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.consumers[queue]
	if !ok {
		return nil, errors.New("NOT_FOUND - no queue '" + queue + "'")
	}
	return ch, nil
}

func (f *fakeChannel) Cancel(consumer string, noWait bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, consumer)
	return nil
}

func (f *fakeChannel) declares(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queueDeclares[name]
}

func (f *fakeChannel) publishes() []fakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakePublish(nil), f.published...)
}

// fakeTransport отдаёт fakeChannel или ошибку.
type fakeTransport struct {
	ch        *fakeChannel
	err       error
	reconnect chan struct{}
}

func newFakeTransport(ch *fakeChannel) *fakeTransport {
	return &fakeTransport{ch: ch, reconnect: make(chan struct{}, 1)}
}

func (t *fakeTransport) WithChannel(ctx context.Context, fn func(ch Channel) error) error {
	if t.err != nil {
		return t.err
	}
	return fn(t.ch)
}

func (t *fakeTransport) ReconnectNotify() <-chan struct{} {
	return t.reconnect
}

// fakeAck записывает ack/nack.
type fakeAck struct {
	mu     sync.Mutex
	acks     []uint64
	nacks    []uint64
	requeues []bool
}

func (a *fakeAck) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, tag)
	return nil
}

func (a *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks = append(a.nacks, tag)
	a.requeues = append(a.requeues, requeue)
	return nil
}

func (a *fakeAck) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}
