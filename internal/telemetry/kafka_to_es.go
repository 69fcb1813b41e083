package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bluebricks/rba-harness/internal/config"
	"github.com/bluebricks/rba-harness/internal/util/logger"
)

// messageReader is the part of *kafka.Reader the indexer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaToES indexes the exchange and request topics into Elasticsearch.
// Offsets are committed once a message has been handed to the ES shipper.
type KafkaToES struct {
	kcfg      config.KafkaConfig
	es        *ESShipper
	newReader func(topic string) messageReader
}

func NewKafkaToES(kcfg config.KafkaConfig, es *ESShipper) *KafkaToES {
	k := &KafkaToES{kcfg: kcfg, es: es}
	k.newReader = func(topic string) messageReader {
		return kafka.NewReader(k.readerConfig(topic))
	}
	return k
}

func (k *KafkaToES) Start(ctx context.Context) {
	if !k.kcfg.Enabled || !k.es.cfg.Enabled {
		return
	}
	k.es.Start()
	for _, topic := range k.topics() {
		go k.consume(ctx, topic, k.newReader(topic))
	}
}

// Stop flushes the ES shipper. Readers exit when the Start context is cancelled.
func (k *KafkaToES) Stop(ctx context.Context) {
	k.es.Stop(ctx)
}

func (k *KafkaToES) topics() []string {
	var out []string
	for _, t := range []string{k.kcfg.TopicExchange, k.kcfg.TopicRequest} {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (k *KafkaToES) consume(ctx context.Context, topic string, reader messageReader) {
	defer func() { _ = reader.Close() }()

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnf("[KafkaToES] fetch topic=%s: %v", topic, err)
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			continue
		}

		doc, err := k.decode(topic, m)
		if err != nil {
			// poison messages are skipped, not retried
			logger.Warnf("[KafkaToES] skip topic=%s offset=%d: %v", topic, m.Offset, err)
		} else {
			k.es.Publish(doc)
		}
		if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			logger.Warnf("[KafkaToES] commit topic=%s offset=%d: %v", topic, m.Offset, err)
		}
	}
}

// decode maps a message to the event type of its topic. The message key and
// time fill in the ID and timestamp when the producer left them out.
func (k *KafkaToES) decode(topic string, m kafka.Message) (any, error) {
	switch topic {
	case k.kcfg.TopicExchange:
		var ev ExchangeEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			return nil, fmt.Errorf("exchange event: %w", err)
		}
		if ev.ExchangeID == "" {
			ev.ExchangeID = string(m.Key)
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = m.Time
		}
		return ev, nil
	case k.kcfg.TopicRequest:
		var ev RequestAuditEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			return nil, fmt.Errorf("request event: %w", err)
		}
		if ev.RequestID == "" {
			ev.RequestID = string(m.Key)
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = m.Time
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unexpected topic %q", topic)
	}
}

func (k *KafkaToES) readerConfig(topic string) kafka.ReaderConfig {
	minBytes := k.kcfg.MinBytes
	if minBytes <= 0 {
		minBytes = 10_000
	}
	maxBytes := k.kcfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10_000_000
	}
	maxWait := k.kcfg.FlushEvery
	if maxWait <= 0 {
		maxWait = time.Second
	}
	group := k.kcfg.GroupID
	if group == "" {
		group = "rba-harness-es"
	}
	return kafka.ReaderConfig{
		Brokers:  k.kcfg.Brokers,
		GroupID:  group,
		Topic:    topic,
		MinBytes: minBytes,
		MaxBytes: maxBytes,
		MaxWait:  maxWait,
	}
}
