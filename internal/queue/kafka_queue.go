package queue

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Shopify/sarama"

	"github.com/windkit/leo-storage/internal/config"
	"github.com/windkit/leo-storage/internal/glog"
)

// KafkaQueue is the production Queue backend, one sarama.AsyncProducer
// per topic. SetConcurrency adjusts a per-topic concurrency counter
// (floored at 1); this package runs no consumers, so the counter is not
// applied to anything here. Grounded on weed/notification/kafka.
type KafkaQueue struct {
	hosts    []string
	mu       sync.RWMutex
	handles  map[string]*kafkaHandle
}

func NewKafkaQueue() *KafkaQueue {
	return &KafkaQueue{handles: make(map[string]*kafkaHandle)}
}

func (k *KafkaQueue) GetName() string { return "kafka" }

func (k *KafkaQueue) Initialize(cfg config.Configuration) error {
	hosts := cfg.GetStringSlice("kafka.hosts")
	if len(hosts) == 0 {
		hosts = []string{"localhost:9092"}
	}
	k.hosts = hosts

	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	saramaCfg.Producer.Partitioner = sarama.NewHashPartitioner
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Return.Errors = true

	k.mu.Lock()
	defer k.mu.Unlock()
	// Topics already includes every topic this core ever calls Handle(...)
	// on. TopicAsyncDeleteDir is a message-kind tag carried inside the
	// payload published onto TopicDelDir (handler/dirdelete.go), not a
	// topic name in its own right, so it needs no separate producer.
	for _, topic := range Topics {
		producer, err := sarama.NewAsyncProducer(hosts, saramaCfg)
		if err != nil {
			return fmt.Errorf("kafka producer for topic %s: %w", topic, err)
		}
		h := &kafkaHandle{topic: topic, producer: producer, concurrency: 1}
		go h.drainSuccesses()
		go h.drainErrors()
		k.handles[topic] = h
	}
	return nil
}

func (k *KafkaQueue) Handle(topic string) Handle {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if h, ok := k.handles[topic]; ok {
		return h
	}
	return noopHandle{}
}

type kafkaHandle struct {
	topic       string
	producer    sarama.AsyncProducer
	concurrency int64
}

func (h *kafkaHandle) Publish(key string, payload []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: h.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}
	h.producer.Input() <- msg
	return nil
}

func (h *kafkaHandle) SetConcurrency(delta int) {
	n := atomic.AddInt64(&h.concurrency, int64(delta))
	if n < 1 {
		atomic.StoreInt64(&h.concurrency, 1)
	}
}

func (h *kafkaHandle) drainSuccesses() {
	for pm := range h.producer.Successes() {
		glog.V(3).Infof("queue %s: published partition=%d offset=%d key=%v", h.topic, pm.Partition, pm.Offset, pm.Key)
	}
}

func (h *kafkaHandle) drainErrors() {
	for err := range h.producer.Errors() {
		glog.Errorf("queue %s: publish failed: %v", h.topic, err)
	}
}

type noopHandle struct{}

func (noopHandle) Publish(key string, payload []byte) error { return nil }
func (noopHandle) SetConcurrency(delta int)                 {}
