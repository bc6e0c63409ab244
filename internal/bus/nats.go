package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus delivers signals over a NATS connection, for daemons where
// authentication plugins run out-of-process.
type NATSBus struct {
	conn *nats.Conn
	subs []*nats.Subscription
}

// NewNATSBus connects to the NATS server at url.
func NewNATSBus(url string) (*NATSBus, error) {
	conn, err := nats.Connect(url,
		nats.Name("secretsd"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(10),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return &NATSBus{conn: conn}, nil
}

func (b *NATSBus) PublishUserInputCompleted(ctx context.Context, evt UserInputCompleted) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal user input completed event: %w", err)
	}
	return b.conn.Publish(SubjectUserInputCompleted, data)
}

func (b *NATSBus) PublishAuthenticationCompleted(ctx context.Context, evt AuthenticationCompleted) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal authentication completed event: %w", err)
	}
	return b.conn.Publish(SubjectAuthenticationCompleted, data)
}

func (b *NATSBus) SubscribeUserInputCompleted(handler func(UserInputCompleted)) error {
	sub, err := b.conn.Subscribe(SubjectUserInputCompleted, func(msg *nats.Msg) {
		var evt UserInputCompleted
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			return
		}
		handler(evt)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectUserInputCompleted, err)
	}
	b.subs = append(b.subs, sub)
	return nil
}

func (b *NATSBus) SubscribeAuthenticationCompleted(handler func(AuthenticationCompleted)) error {
	sub, err := b.conn.Subscribe(SubjectAuthenticationCompleted, func(msg *nats.Msg) {
		var evt AuthenticationCompleted
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			return
		}
		handler(evt)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectAuthenticationCompleted, err)
	}
	b.subs = append(b.subs, sub)
	return nil
}

func (b *NATSBus) Close() error {
	for _, s := range b.subs {
		_ = s.Unsubscribe()
	}
	b.conn.Close()
	return nil
}
