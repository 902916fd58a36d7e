package db

import (
	"fmt"
	"time"

	"backend-routerecorder/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ConnectMQTT returns nil without error unless the host runs in mqtt mode.
func ConnectMQTT(cfg config.Config) (mqtt.Client, error) {
	if cfg.HostMode != "mqtt" {
		return nil, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second).
		SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect: timed out")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return client, nil
}
