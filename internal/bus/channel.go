package bus

import (
	"context"
	"sync"
)

// ChannelBus delivers signals in-process by running each subscribed
// handler on its own goroutine. Used whenever
// no NATS URL is configured — the common single-process and test case —
// and functionally equivalent to NATSBus from internal/processor's point
// of view: both satisfy Bus, both deliver asynchronously, neither is
// ever called synchronously from the publishing goroutine.
type ChannelBus struct {
	mu           sync.Mutex
	uicHandlers  []func(UserInputCompleted)
	authHandlers []func(AuthenticationCompleted)
	closed       bool
}

// NewChannelBus returns a ready-to-use in-process Bus.
func NewChannelBus() *ChannelBus {
	return &ChannelBus{}
}

func (b *ChannelBus) PublishUserInputCompleted(ctx context.Context, evt UserInputCompleted) error {
	b.mu.Lock()
	handlers := append([]func(UserInputCompleted){}, b.uicHandlers...)
	b.mu.Unlock()
	for _, h := range handlers {
		go h(evt)
	}
	return nil
}

func (b *ChannelBus) PublishAuthenticationCompleted(ctx context.Context, evt AuthenticationCompleted) error {
	b.mu.Lock()
	handlers := append([]func(AuthenticationCompleted){}, b.authHandlers...)
	b.mu.Unlock()
	for _, h := range handlers {
		go h(evt)
	}
	return nil
}

func (b *ChannelBus) SubscribeUserInputCompleted(handler func(UserInputCompleted)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uicHandlers = append(b.uicHandlers, handler)
	return nil
}

func (b *ChannelBus) SubscribeAuthenticationCompleted(handler func(AuthenticationCompleted)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.authHandlers = append(b.authHandlers, handler)
	return nil
}

func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.uicHandlers = nil
	b.authHandlers = nil
	return nil
}
