package queue

import (
	"sync"

	"github.com/windkit/leo-storage/internal/config"
)

// Message is a published (key, payload) pair, retained by MemQueue for
// test assertions.
type Message struct {
	Key     string
	Payload []byte
}

// MemQueue is an in-process Queue fake: every publish is retained in
// order per topic, and SetConcurrency adds each delta to a per-topic
// running total (Concurrency reports it; it starts at 0).
// Used by tests in place of KafkaQueue.
type MemQueue struct {
	mu          sync.Mutex
	messages    map[string][]Message
	concurrency map[string]int
}

func NewMemQueue() *MemQueue {
	return &MemQueue{
		messages:    make(map[string][]Message),
		concurrency: make(map[string]int),
	}
}

func (m *MemQueue) GetName() string                            { return "mem" }
func (m *MemQueue) Initialize(cfg config.Configuration) error  { return nil }

func (m *MemQueue) Handle(topic string) Handle {
	return &memHandle{q: m, topic: topic}
}

func (m *MemQueue) Messages(topic string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages[topic]))
	copy(out, m.messages[topic])
	return out
}

func (m *MemQueue) Concurrency(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.concurrency[topic]
}

type memHandle struct {
	q     *MemQueue
	topic string
}

func (h *memHandle) Publish(key string, payload []byte) error {
	h.q.mu.Lock()
	defer h.q.mu.Unlock()
	h.q.messages[h.topic] = append(h.q.messages[h.topic], Message{Key: key, Payload: payload})
	return nil
}

func (h *memHandle) SetConcurrency(delta int) {
	h.q.mu.Lock()
	defer h.q.mu.Unlock()
	h.q.concurrency[h.topic] += delta
}
