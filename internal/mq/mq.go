// Package mq provides the broker-agnostic message channel used to hand mail
// jobs (welcome, password reset) to the out-of-process mailer worker.
package mq

import "context"

// Message is a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Returning an error nacks the delivery.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker operations the application depends on.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}
