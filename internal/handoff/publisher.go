package handoff

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeName       = "routerecorder.events"
	eventRouteRecorded = "route.recorded"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher announces finished recordings on a fanout exchange.
type Publisher struct {
	ch amqpChannel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchangeName, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Receive(ctx context.Context, h Handoff) error {
	msg := recordedEvent{
		Event:      eventRouteRecorded,
		PointCount: len(h.Route),
		StartedAt:  h.StartedAt.UnixMilli(),
		StoppedAt:  h.StoppedAt.UnixMilli(),
	}
	if len(h.Route) > 0 {
		first, last := h.Route[0], h.Route[len(h.Route)-1]
		msg.First = &latLng{Latitude: first.Latitude, Longitude: first.Longitude}
		msg.Last = &latLng{Latitude: last.Latitude, Longitude: last.Longitude}
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return p.ch.PublishWithContext(ctx, exchangeName, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Type:        eventRouteRecorded,
		Body:        body,
	})
}
