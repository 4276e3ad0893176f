// Package memory records change events in memory, standing in for Pub/Sub in
// tests and single-instance runs that have no broker configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/moviefeed/release-crawler/internal/crawler"
)

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the message and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Events returns the recorded movie change events, in publish order.
func (p *Publisher) Events() []crawler.ChangeEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var events []crawler.ChangeEvent
	for _, msg := range p.messages {
		if event, ok := msg.Payload.(crawler.ChangeEvent); ok {
			events = append(events, event)
		}
	}
	return events
}
