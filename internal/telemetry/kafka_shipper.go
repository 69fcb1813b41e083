package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bluebricks/rba-harness/internal/config"
	"github.com/bluebricks/rba-harness/internal/metrics"
	"github.com/bluebricks/rba-harness/internal/util/logger"
)

// messageWriter is the subset of *kafka.Writer the shipper uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaShipper streams exchanges and request audits to Kafka. Publish never
// blocks; events are dropped when the queue is full.
type KafkaShipper struct {
	cfg       config.KafkaConfig
	wExchange messageWriter
	wRequest  messageWriter
	ch        chan any
	stop      chan struct{}
	done      chan struct{}
}

func NewKafkaShipper(cfgIn config.KafkaConfig) (*KafkaShipper, error) {
	cfg := cfgIn
	if !cfg.Enabled {
		return &KafkaShipper{cfg: cfg}, nil
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 2 * time.Second
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = cfg.BatchSize * 4
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	tr := &kafka.Transport{DialTimeout: cfg.DialTimeout}
	if cfg.TLS {
		tr.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	writer := func(topic string) messageWriter {
		if topic == "" {
			return nil
		}
		return &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			Transport:              tr,
			AllowAutoTopicCreation: false,
			Async:                  true,
			BatchTimeout:           cfg.FlushEvery,
			BatchSize:              cfg.BatchSize,
			WriteTimeout:           cfg.WriteTimeout,
		}
	}
	return newKafkaShipper(cfg, writer(cfg.TopicExchange), writer(cfg.TopicRequest)), nil
}

func newKafkaShipper(cfg config.KafkaConfig, wExchange, wRequest messageWriter) *KafkaShipper {
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = 1
	}
	return &KafkaShipper{
		cfg:       cfg,
		wExchange: wExchange,
		wRequest:  wRequest,
		ch:        make(chan any, capacity),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *KafkaShipper) Start() {
	if !s.cfg.Enabled {
		return
	}
	logger.Infof("[Kafka] shipping exchanges to %q and requests to %q", s.cfg.TopicExchange, s.cfg.TopicRequest)
	go s.loop()
}

// Stop drains what is queued and closes the writers.
func (s *KafkaShipper) Stop(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	close(s.stop)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	for _, w := range []messageWriter{s.wExchange, s.wRequest} {
		if w != nil {
			_ = w.Close()
		}
	}
}

func (s *KafkaShipper) Publish(ev any) {
	if !s.cfg.Enabled {
		return
	}
	select {
	case s.ch <- ev:
	default:
		metrics.ShipperDropsTotal.WithLabelValues("kafka").Inc()
	}
}

func (s *KafkaShipper) loop() {
	defer close(s.done)
	for {
		select {
		case ev := <-s.ch:
			s.ship(ev)
		case <-s.stop:
			for {
				select {
				case ev := <-s.ch:
					s.ship(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *KafkaShipper) ship(ev any) {
	if err := s.dispatch(ev); err != nil {
		logger.Warnf("[Kafka] write failed: %v", err)
	}
}

func (s *KafkaShipper) dispatch(ev any) error {
	now := time.Now().UTC()
	ev, m := normalize(ev, now)
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}

	key := func(field string) []byte {
		if str, ok := m[field].(string); ok && str != "" {
			return []byte(str)
		}
		return nil
	}

	switch ev.(type) {
	case RequestAuditEvent:
		if s.wRequest == nil {
			return nil
		}
		return s.wRequest.WriteMessages(context.Background(), kafka.Message{
			Key:   key("request_id"),
			Value: payload,
			Time:  now,
		})
	default:
		if s.wExchange == nil {
			return nil
		}
		return s.wExchange.WriteMessages(context.Background(), kafka.Message{
			Key:   key("exchange_id"),
			Value: payload,
			Time:  now,
		})
	}
}
