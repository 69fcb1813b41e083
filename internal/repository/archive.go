package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bluebricks/rba-harness/internal/exchangelog"
	"github.com/bluebricks/rba-harness/internal/metrics"
	"github.com/bluebricks/rba-harness/internal/util/logger"
)

type ArchiveOptions struct {
	BatchSize     int
	FlushEvery    time.Duration
	QueueCapacity int
	WriteTimeout  time.Duration
}

// Archive persists exchange log entries in the background. Publish never
// blocks; entries are dropped when the queue is full.
type Archive struct {
	repo ExchangeRepository
	opts ArchiveOptions
	ch   chan exchangelog.Entry
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewArchive(repo ExchangeRepository, opts ArchiveOptions) *Archive {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = 2 * time.Second
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = opts.BatchSize * 10
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Archive{
		repo: repo,
		opts: opts,
		ch:   make(chan exchangelog.Entry, opts.QueueCapacity),
		stop: make(chan struct{}),
	}
}

func (a *Archive) Start() {
	a.wg.Add(1)
	go a.loop()
}

// Stop flushes queued entries, waiting at most until ctx is done.
func (a *Archive) Stop(ctx context.Context) {
	close(a.stop)
	done := make(chan struct{})
	go func() { a.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warnf("[Archive] stop timed out with %d entries queued", len(a.ch))
	}
}

// Publish queues e when it is an exchange log entry; other values are ignored.
func (a *Archive) Publish(ev any) {
	e, ok := ev.(exchangelog.Entry)
	if !ok {
		return
	}
	select {
	case a.ch <- e:
	default:
		metrics.ShipperDropsTotal.WithLabelValues("postgres").Inc()
	}
}

func (a *Archive) Recent(ctx context.Context, limit int) ([]ExchangeRecord, error) {
	return a.repo.Recent(ctx, limit)
}

func (a *Archive) loop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.opts.FlushEvery)
	defer ticker.Stop()

	batch := make([]ExchangeRecord, 0, a.opts.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), a.opts.WriteTimeout)
		defer cancel()
		if err := a.repo.InsertBatch(ctx, batch); err != nil {
			logger.Errorf("[Archive] %v", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-a.ch:
			batch = append(batch, toRecord(e))
			if len(batch) >= a.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-a.stop:
			for {
				select {
				case e := <-a.ch:
					batch = append(batch, toRecord(e))
				default:
					flush()
					return
				}
			}
		}
	}
}

func toRecord(e exchangelog.Entry) ExchangeRecord {
	rec := ExchangeRecord{
		ID:        e.ID,
		CreatedAt: e.Timestamp,
		Request:   marshalJSON(e.Request),
		Response:  marshalJSON(e.Response),
		IsError:   e.IsError,
	}
	var r struct {
		URL string `json:"url"`
	}
	if json.Unmarshal(rec.Request, &r) == nil {
		rec.URL = r.URL
	}
	return rec
}

func marshalJSON(v any) json.RawMessage {
	if raw, ok := v.(json.RawMessage); ok {
		if json.Valid(raw) {
			return raw
		}
		v = string(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
