package port

import "context"

type Broadcaster interface {
	// Publish delivers payload to every current subscriber of topic, best effort
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers for messages published to topic after it returns
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

type Subscription interface {
	Messages() <-chan []byte
	Close() error
}
