// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport carries all robot and observer streams over MQTT.
// Inputs are cached in latest-value cells so the estimation loop never
// blocks on the broker; outputs are published as JSON.
package transport

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client wraps the shared MQTT connection.
type Client struct {
	mqtt mqtt.Client
}

// Dial connects to the broker. Connection failure is a fatal startup error
// for every binary in this module.
func Dial(broker, clientID string) (*Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("transport: connect to %s: %w", broker, token.Error())
	}
	return &Client{mqtt: client}, nil
}

// Disconnect closes the connection, allowing a short drain.
func (c *Client) Disconnect() {
	c.mqtt.Disconnect(250)
}

// SubscribeCell subscribes a topic into a fresh latest-value cell.
func (c *Client) SubscribeCell(topic string) (*cell, error) {
	cl := newCell()
	token := c.mqtt.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		cl.Put(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return nil, fmt.Errorf("transport: subscribe %s: %w", topic, token.Error())
	}
	return cl, nil
}

// Subscribe registers a raw message handler, for event-driven stages.
func (c *Client) Subscribe(topic string, handler func(payload []byte)) error {
	token := c.mqtt.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("transport: subscribe %s: %w", topic, token.Error())
	}
	return nil
}

// PublishJSON marshals v and publishes it on topic.
func (c *Client) PublishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("transport: marshal for %s: %w", topic, err)
	}
	token := c.mqtt.Publish(topic, 0, true, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("transport: publish %s: %w", topic, token.Error())
	}
	return nil
}
