// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package mqttclient

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Message is an inbound publication, detached from the transport so the
// host callback can hold onto it.
type Message struct {
	Topic     string `json:"topic"`
	Payload   []byte `json:"payload"`
	QoS       byte   `json:"qos"`
	Retained  bool   `json:"retained"`
	Duplicate bool   `json:"duplicate"`
	MessageID uint16 `json:"messageId"`
}

// Text returns the payload as a string.
func (m *Message) Text() string {
	return string(m.Payload)
}

func newMessage(src mqtt.Message) *Message {
	payload := make([]byte, len(src.Payload()))
	copy(payload, src.Payload())
	return &Message{
		Topic:     src.Topic(),
		Payload:   payload,
		QoS:       src.Qos(),
		Retained:  src.Retained(),
		Duplicate: src.Duplicate(),
		MessageID: src.MessageID(),
	}
}

// ConnectionEvent reports a broker connection state change.
type ConnectionEvent struct {
	Connected bool   `json:"connected"`
	Reason    string `json:"reason,omitempty"`
}
