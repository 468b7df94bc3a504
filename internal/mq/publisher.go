package mq

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Courier/internal/domain"
)

// Publish публикует envelope в очередь routingKey.
//
// Пустой routingKey - используется env.RoutingKey.
// В режиме client очередь не объявляется: она должна уже существовать.
// В режиме worker очередь объявляется перед первой публикацией.
//
// Превышение PublishTimeout - ErrPublishTimeout, без внутреннего retry.
func (g *Gateway) Publish(ctx context.Context, env *domain.Envelope, routingKey string) error {
	if routingKey == "" {
		routingKey = env.RoutingKey
	}
	if routingKey == "" {
		return ErrNoRoutingKey
	}

	if !g.isClient() {
		if _, err := g.Declare(ctx, routingKey); err != nil {
			return err
		}
	}

	if env.RoutingKey != routingKey {
		copied := *env
		copied.RoutingKey = routingKey
		env = &copied
	}

	msg, err := Encode(env)
	if err != nil {
		g.metrics.ObservePublish("error")
		return err
	}

	pubCtx := ctx
	if g.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(ctx, g.cfg.PublishTimeout)
		defer cancel()
	}

	// Публикация в отдельной горутине: таймаут соблюдается,
	// даже если транспорт его не учитывает.
	done := make(chan error, 1)
	go func() {
		done <- g.transport.WithChannel(pubCtx, func(ch Channel) error {
			return ch.PublishWithContext(
				pubCtx,
				g.cfg.Exchange, // exchange
				routingKey,     // routing key
				false,          // mandatory
				false,          // immediate
				msg,
			)
		})
	}()

	select {
	case err = <-done:
	case <-pubCtx.Done():
		err = pubCtx.Err()
	}

	if err != nil {
		// Таймаут публикации - только если истёк собственный дедлайн, а не ctx вызывающего
		if g.cfg.PublishTimeout > 0 && ctx.Err() == nil && errors.Is(pubCtx.Err(), context.DeadlineExceeded) {
			g.metrics.ObservePublish("timeout")
			return fmt.Errorf("%w: %s to %s after %s", ErrPublishTimeout, env.TaskName, routingKey, g.cfg.PublishTimeout)
		}
		g.metrics.ObservePublish("error")
		return fmt.Errorf("publish %s to %s: %w", env.TaskName, routingKey, err)
	}

	g.metrics.ObservePublish("ok")

	g.logger.Debug("published message",
		"exchange", g.cfg.Exchange,
		"routing_key", routingKey,
		"task", env.TaskName,
		"task_id", env.ID,
		"retries", env.Retries,
	)

	return nil
}
