package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSBus is the NATS-backed Bus implementation. Subject strings use
// NATS's native `*` (one token) and `>` (remainder) wildcards, and queue
// groups map directly onto NATS queue subscriptions.
type NATSBus struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// Connect dials url and returns a ready Bus. The connection retries
// internally per the nats.go client defaults; Connect itself fails fast
// if the initial dial does not succeed.
func Connect(url string, logger *zap.Logger) (*NATSBus, error) {
	conn, err := nats.Connect(url,
		nats.Name("bodybroker"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("bus disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("bus reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to bus: %w", err)
	}
	return &NATSBus{conn: conn, logger: logger}, nil
}

// Publish implements Publisher.
func (b *NATSBus) Publish(_ context.Context, subject string, data []byte) error {
	return b.conn.Publish(subject, data)
}

// Subscribe implements Subscriber. When group is empty, every subscriber
// gets every message; otherwise only one subscriber within the group
// receives each message (NATS queue subscription).
func (b *NATSBus) Subscribe(subject, group string, handler Handler) (Subscription, error) {
	natsHandler := func(msg *nats.Msg) {
		handler(context.Background(), msg.Subject, msg.Data)
	}

	var sub *nats.Subscription
	var err error
	if group == "" {
		sub, err = b.conn.Subscribe(subject, natsHandler)
	} else {
		sub, err = b.conn.QueueSubscribe(subject, group, natsHandler)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// SubscribeReply implements Subscriber's server-side request/reply:
// handler's return value is sent back via msg.Respond, the NATS-native
// counterpart to Request's client-side inbox.
func (b *NATSBus) SubscribeReply(subject string, handler ReplyHandler) (Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		resp := handler(context.Background(), msg.Subject, msg.Data)
		if err := msg.Respond(resp); err != nil {
			b.logger.Warn("bus: respond failed", zap.String("subject", subject), zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe reply %s: %w", subject, err)
	}
	return sub, nil
}

// Request implements Requester.
func (b *NATSBus) Request(ctx context.Context, subject string, data []byte, timeout time.Duration) ([]byte, error) {
	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	msg, err := b.conn.RequestWithContext(reqCtx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", subject, err)
	}
	return msg.Data, nil
}

// Close drains and closes the underlying connection.
func (b *NATSBus) Close() error {
	return b.conn.Drain()
}
