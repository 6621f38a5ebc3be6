package drift

import "context"

type fakeBus struct {
	published []publishedMessage
}

type publishedMessage struct {
	Subject string
	Data    []byte
}

func (b *fakeBus) Publish(ctx context.Context, subject string, data []byte) error {
	b.published = append(b.published, publishedMessage{Subject: subject, Data: data})
	return nil
}
