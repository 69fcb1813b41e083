package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/bluebricks/rba-harness/internal/config"
	"github.com/bluebricks/rba-harness/internal/metrics"
	"github.com/bluebricks/rba-harness/internal/util/logger"
)

// ESShipper bulk indexes events into daily indices named <prefix>-YYYY.MM.DD.
// Batches flush when full or on a ticker.
type ESShipper struct {
	cfg   config.ESAuditConfig
	es    *elasticsearch.Client
	ch    chan any
	wg    sync.WaitGroup
	stop  chan struct{}
	now   func() time.Time
	index func(time.Time) string
}

func NewESShipper(cfg config.ESAuditConfig) (*ESShipper, error) {
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = 500
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.IndexPref == "" {
		cfg.IndexPref = "rba-harness"
	}
	s := &ESShipper{
		cfg:  cfg,
		ch:   make(chan any, cfg.FlushSize*4),
		stop: make(chan struct{}),
		now:  time.Now,
		index: func(t time.Time) string {
			return fmt.Sprintf("%s-%04d.%02d.%02d", cfg.IndexPref, t.Year(), int(t.Month()), t.Day())
		},
	}
	if !cfg.Enabled {
		return s, nil
	}
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("elasticsearch: no addresses configured")
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		APIKey:    cfg.APIKey,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{ResponseHeaderTimeout: cfg.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: %w", err)
	}
	s.es = es
	return s, nil
}

func (s *ESShipper) Start() {
	if !s.cfg.Enabled {
		return
	}
	logger.Infof("[ES] indexing into %s-*", s.cfg.IndexPref)
	s.wg.Add(1)
	go s.loop()
}

func (s *ESShipper) Stop(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	close(s.stop)
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *ESShipper) Publish(ev any) {
	if !s.cfg.Enabled {
		return
	}
	select {
	case s.ch <- ev:
	default:
		metrics.ShipperDropsTotal.WithLabelValues("elasticsearch").Inc()
	}
}

func (s *ESShipper) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.FlushEvery)
	defer ticker.Stop()

	batch := make([]any, 0, s.cfg.FlushSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.bulkIndex(context.Background(), batch); err != nil {
			logger.Warnf("[ES] bulk of %d failed: %v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev := <-s.ch:
			batch = append(batch, ev)
			if len(batch) >= s.cfg.FlushSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.stop:
			for {
				select {
				case ev := <-s.ch:
					batch = append(batch, ev)
				default:
					flush()
					return
				}
			}
		}
	}
}

// bulkBody renders batch as _bulk NDJSON.
func (s *ESShipper) bulkBody(batch []any) *bytes.Buffer {
	var buf bytes.Buffer
	now := s.now().UTC()
	idx := s.index(now)
	meta, _ := json.Marshal(map[string]any{"index": map[string]any{"_index": idx}})
	for _, ev := range batch {
		_, doc := normalize(ev, now)
		db, err := json.Marshal(doc)
		if err != nil {
			continue
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(db)
		buf.WriteByte('\n')
	}
	return &buf
}

func (s *ESShipper) bulkIndex(ctx context.Context, batch []any) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	res, err := s.es.Bulk(s.bulkBody(batch), s.es.Bulk.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("bulk status %s: %s", res.Status(), body)
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

// Ping reports whether the cluster answers a health request.
func (s *ESShipper) Ping(ctx context.Context) error {
	if s.es == nil {
		return nil
	}
	res, err := s.es.Cluster.Health(s.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch health: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch health status: %s", res.Status())
	}
	return nil
}
