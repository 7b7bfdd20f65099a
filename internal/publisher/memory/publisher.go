// Package memory records record notifications in-process, encoded the same
// way the Pub/Sub publisher sends them.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
)

// Message is one recorded publish.
type Message struct {
	ID    string
	Topic string
	Data  []byte
}

// Publisher keeps every published message for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

var _ crawler.Publisher = (*Publisher)(nil)

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish JSON-encodes payload and records it under topic.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Data: data})
	return id, nil
}

// Messages returns a copy of the recorded messages in publish order.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	for i, m := range p.messages {
		m.Data = append([]byte(nil), m.Data...)
		out[i] = m
	}
	return out
}

// Notifications decodes the messages published to topic.
func (p *Publisher) Notifications(topic string) ([]crawler.Notification, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []crawler.Notification
	for _, m := range p.messages {
		if m.Topic != topic {
			continue
		}
		var n crawler.Notification
		if err := json.Unmarshal(m.Data, &n); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", m.ID, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Links lists the record links announced on topic for one run.
func (p *Publisher) Links(topic, runID string) ([]string, error) {
	notes, err := p.Notifications(topic)
	if err != nil {
		return nil, err
	}
	var links []string
	for _, n := range notes {
		if n.RunID == runID {
			links = append(links, n.Link)
		}
	}
	return links, nil
}

// Reset forgets every recorded message.
func (p *Publisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = nil
}
