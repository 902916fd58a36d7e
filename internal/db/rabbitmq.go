package db

import (
	"fmt"

	"backend-routerecorder/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
)

var dialAMQPFn = amqp.Dial

// ConnectRabbitMQ returns nil without error when no URL is configured.
func ConnectRabbitMQ(cfg config.Config) (*amqp.Connection, error) {
	if cfg.RabbitMQURL == "" {
		return nil, nil
	}
	conn, err := dialAMQPFn(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connect: %w", err)
	}
	return conn, nil
}
