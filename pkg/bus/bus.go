// Package bus defines the shared pub/sub + request/reply contract every
// service depends on (§4.1, §6), and a NATS-backed implementation.
package bus

import (
	"context"
	"time"
)

// Handler processes one message delivered on a subscription. It has no
// error return: a handler logs its own failures, and a failing handler
// does not end the subscription.
type Handler func(ctx context.Context, subject string, data []byte)

// ReplyHandler answers one request/reply call with the response bytes to
// send back to the caller's inbox. Used for the §6 "story request/reply
// API" subjects (story.get.snapshot, story.check.drift, ...).
type ReplyHandler func(ctx context.Context, subject string, data []byte) []byte

// Publisher publishes opaque byte payloads to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Subscriber subscribes to a subject pattern, optionally within a queue
// group for competing-consumer semantics: when group is non-empty, only
// one subscriber within the group receives each message.
type Subscriber interface {
	Subscribe(subject, group string, handler Handler) (Subscription, error)

	// SubscribeReply subscribes to subject and responds to each inbound
	// request with handler's return value, the server side of Requester
	// (§6's request/reply subjects).
	SubscribeReply(subject string, handler ReplyHandler) (Subscription, error)
}

// Subscription can be cancelled independently of the bus connection.
type Subscription interface {
	Unsubscribe() error
}

// Requester performs a synchronous request/reply with a timeout.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) ([]byte, error)
}

// Bus is the full contract a Service wires up at start and tears down at
// stop (§4.1).
type Bus interface {
	Publisher
	Subscriber
	Requester
	Close() error
}
