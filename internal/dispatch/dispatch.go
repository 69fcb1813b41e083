// Package dispatch schedules a batch of payloads and fires them concurrently.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/bluebricks/rba-harness/internal/util/logger"
	"github.com/bluebricks/rba-harness/internal/util/random"
	"github.com/bluebricks/rba-harness/internal/util/timefmt"
)

// Mode selects how dispatch times are spread.
type Mode string

const (
	ModeImmediate Mode = "immediate"
	ModeInterval  Mode = "interval"
	ModeRandom    Mode = "random"
)

// MaxSpan bounds how far into the future an interval schedule may reach.
const MaxSpan = 24 * time.Hour

var (
	ErrInvalidWindow = errors.New("dispatch: random window must have start before end")
	ErrUnknownMode   = errors.New("dispatch: unknown strategy")
	ErrSpanTooLong   = errors.New("dispatch: interval schedule exceeds 24h")
)

// Strategy is the operator's timing choice. Interval is in milliseconds;
// Start and End bound the random window.
type Strategy struct {
	Mode       Mode   `json:"mode" validate:"omitempty,oneof=immediate interval random"`
	IntervalMS int64  `json:"interval" validate:"gte=0,lte=86400000"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

// Times returns one absolute dispatch time per payload.
func Times(s Strategy, n int, now time.Time, rng *random.Rand) ([]time.Time, error) {
	out := make([]time.Time, n)
	switch s.Mode {
	case ModeImmediate, "":
		for i := range out {
			out[i] = now
		}
	case ModeInterval:
		if s.IntervalMS < 0 || (n > 1 && s.IntervalMS > MaxSpan.Milliseconds()/int64(n-1)) {
			return nil, ErrSpanTooLong
		}
		step := time.Duration(s.IntervalMS) * time.Millisecond
		for i := range out {
			out[i] = now.Add(time.Duration(i) * step)
		}
	case ModeRandom:
		start, ok1 := timefmt.Parse(s.Start)
		end, ok2 := timefmt.Parse(s.End)
		if !ok1 || !ok2 || !start.Before(end) {
			return nil, ErrInvalidWindow
		}
		lo, hi := start.UnixMilli(), end.UnixMilli()
		for i := range out {
			out[i] = time.UnixMilli(lo + rng.Int64N(hi-lo+1))
		}
	default:
		return nil, ErrUnknownMode
	}
	return out, nil
}

// SendFunc delivers one payload and returns the upstream response.
type SendFunc func(ctx context.Context, index int) (any, error)

// Result is the outcome of one payload.
type Result struct {
	Index    int
	Response any
	Err      error
}

// Dispatcher fires payloads at their scheduled times.
type Dispatcher struct {
	now func() time.Time
}

func NewDispatcher(now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{now: now}
}

// Run starts one goroutine per entry in times, each waiting until its time
// before calling send. It waits for all of them and returns results in input
// order. A failed send never affects the others. Cancelling ctx abandons
// sends that have not fired yet.
func (d *Dispatcher) Run(ctx context.Context, times []time.Time, send SendFunc) []Result {
	results := make([]Result, len(times))
	var wg conc.WaitGroup
	for i, at := range times {
		wg.Go(func() {
			results[i] = Result{Index: i}
			if delay := at.Sub(d.now()); delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					results[i].Err = ctx.Err()
					return
				case <-timer.C:
				}
			}
			resp, err := send(ctx, i)
			if err != nil {
				logger.Debugf("[Dispatch] payload %d failed: %v", i, err)
			}
			results[i].Response, results[i].Err = resp, err
		})
	}
	wg.Wait()
	return results
}
