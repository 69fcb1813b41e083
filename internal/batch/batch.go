// Package batch plans multi-request runs: normal payloads built from the
// operator's batches, fraud payloads injected on top, all dispatched through
// the relay on the chosen timing strategy.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bluebricks/rba-harness/internal/dispatch"
	"github.com/bluebricks/rba-harness/internal/metrics"
	"github.com/bluebricks/rba-harness/internal/models"
	"github.com/bluebricks/rba-harness/internal/payload"
	"github.com/bluebricks/rba-harness/internal/report"
	"github.com/bluebricks/rba-harness/internal/service"
	"github.com/bluebricks/rba-harness/internal/util/logger"
	"github.com/bluebricks/rba-harness/internal/util/random"
)

// ErrBatchOverflow is returned when the batches hold more payloads than the
// requests left after fraud injection.
var ErrBatchOverflow = errors.New("batch: batch counts exceed total requests minus fraud")

const (
	unknownCity    = "UnknownCity"
	unknownCountry = "UnknownCountry"

	defaultAmountMin = 10
	defaultAmountMax = 1000

	// fallbacks when the plan has no normal payloads
	loginMaxTimeTaken       = 15
	transactionMaxTimeTaken = 30
	transactionMaxAmount    = 50000
)

// Batch is one group of identical normal payloads. Only the context that
// matches the plan's kind is used.
type Batch struct {
	Count       int                        `json:"count" validate:"gte=0"`
	Login       payload.LoginContext       `json:"login"`
	Transaction payload.TransactionContext `json:"transaction"`
	Channel     payload.ChannelFields      `json:"channel"`
}

// Plan describes a multi-request run.
type Plan struct {
	Kind          report.Kind       `json:"kind" validate:"required,oneof=login transaction"`
	TargetURL     string            `json:"targetUrl" validate:"required"`
	Headers       map[string]string `json:"headers"`
	DeviceType    string            `json:"deviceType"`
	TotalRequests int               `json:"totalRequests" validate:"gte=0,lte=10000"`
	Fraud         int               `json:"fraud"`
	NumUsers      int               `json:"numUsers"`
	Users         []string          `json:"users"`
	Batches       []Batch           `json:"batches" validate:"dive"`
	Strategy      dispatch.Strategy `json:"strategy"`
}

// Item is a built payload waiting to be dispatched.
type Item struct {
	UserID  string
	Fraud   bool
	Payload any
}

// Result is the response of a dispatched plan.
type Result struct {
	Success   bool              `json:"success"`
	Total     int               `json:"total"`
	Fraud     int               `json:"fraud"`
	Responses []json.RawMessage `json:"responses"`
	Summary   report.Summary    `json:"summary"`
}

// Relay sends one payload upstream.
type Relay interface {
	Send(ctx context.Context, req service.SendRequest) (json.RawMessage, error)
}

// Devices supplies device profiles for payloads.
type Devices interface {
	ProfileFor(userID string, dt models.DeviceType) models.DeviceProfile
	Random(dt models.DeviceType) models.DeviceProfile
	UserIDs() []string
}

type Runner struct {
	relay      Relay
	devices    Devices
	builder    *payload.Builder
	dispatcher *dispatch.Dispatcher
	validate   *validator.Validate
	rng        *random.Rand
	now        func() time.Time
}

func NewRunner(relay Relay, devices Devices, builder *payload.Builder, rng *random.Rand, now func() time.Time) *Runner {
	if rng == nil {
		rng = random.New()
	}
	if now == nil {
		now = time.Now
	}
	return &Runner{
		relay:      relay,
		devices:    devices,
		builder:    builder,
		dispatcher: dispatch.NewDispatcher(now),
		validate:   validator.New(),
		rng:        rng,
		now:        now,
	}
}

// Run builds every payload of p, dispatches them and waits for all answers.
// Individual failures are reported in the responses, never as an error.
func (r *Runner) Run(ctx context.Context, p Plan) (*Result, error) {
	items, err := r.Prepare(p)
	if err != nil {
		return nil, err
	}
	times, err := dispatch.Times(p.Strategy, len(items), r.now(), r.rng)
	if err != nil {
		return nil, err
	}

	fraud := 0
	for _, it := range items {
		if it.Fraud {
			fraud++
		}
	}
	metrics.BatchPayloads.WithLabelValues(string(p.Kind), "false").Observe(float64(len(items) - fraud))
	metrics.BatchPayloads.WithLabelValues(string(p.Kind), "true").Observe(float64(fraud))
	logger.Infof("[Batch] dispatching %d %s payloads (%d fraud, strategy %q)", len(items), p.Kind, fraud, p.Strategy.Mode)

	results := r.dispatcher.Run(ctx, times, func(ctx context.Context, i int) (any, error) {
		return r.relay.Send(ctx, service.SendRequest{
			TargetURL: p.TargetURL,
			Payload:   items[i].Payload,
			Headers:   p.Headers,
		})
	})

	out := &Result{Success: true, Total: len(items), Fraud: fraud, Responses: make([]json.RawMessage, len(results))}
	parsed := make([]*report.Response, len(results))
	for i, res := range results {
		var body json.RawMessage
		if res.Err == nil {
			body, _ = res.Response.(json.RawMessage)
		}
		out.Responses[i] = withUserID(body, res.Err == nil, items[i].UserID)

		var rr report.Response
		if err := json.Unmarshal(out.Responses[i], &rr); err == nil {
			parsed[i] = &rr
		}
	}
	out.Summary = report.Summarize(p.Kind, parsed)
	return out, nil
}

// Prepare validates p and returns its payloads, normal and fraud, shuffled.
func (r *Runner) Prepare(p Plan) ([]Item, error) {
	if err := r.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("batch: invalid plan: %w", err)
	}
	p.Fraud = min(max(p.Fraud, 0), p.TotalRequests)

	if totalCount(p.Batches) > p.TotalRequests-p.Fraud {
		return nil, ErrBatchOverflow
	}

	dt := models.ParseDeviceType(p.DeviceType)
	urlUser := queryUserID(p.TargetURL)
	users := p.Users
	if len(users) == 0 {
		users = r.devices.UserIDs()
		slices.Sort(users)
	}
	numUsers := min(max(p.NumUsers, 1), max(len(users), 1))
	var selected []string
	if numUsers > 1 {
		selected = r.pickUsers(users, numUsers)
	}

	pl := &planner{Runner: r, plan: p, dt: dt, urlUser: urlUser, selected: selected}
	items := pl.normal()
	items = append(items, pl.fraud()...)
	r.rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	return items, nil
}

// pickUsers returns n users chosen by a partial Fisher-Yates shuffle.
func (r *Runner) pickUsers(users []string, n int) []string {
	pool := slices.Clone(users)
	for i := len(pool) - 1; i > 0; i-- {
		j := r.rng.IntN(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:min(n, len(pool))]
}

type planner struct {
	*Runner
	plan     Plan
	dt       models.DeviceType
	urlUser  string
	selected []string

	usedCities    map[string]bool
	usedCountries map[string]bool
	maxTimeTaken  float64
	maxAmount     float64
}

func (pl *planner) device(userID string) models.DeviceProfile {
	if userID == "" {
		return pl.devices.Random(pl.dt)
	}
	return pl.devices.ProfileFor(userID, pl.dt)
}

// normal builds the operator's batches, users assigned round robin.
func (pl *planner) normal() []Item {
	pl.usedCities, pl.usedCountries = map[string]bool{}, map[string]bool{}
	var items []Item
	idx := 0
	for _, b := range pl.plan.Batches {
		loc := pl.location(b)
		if loc.City != "" {
			pl.usedCities[strings.ToLower(loc.City)] = true
		}
		if loc.Country != "" {
			pl.usedCountries[strings.ToLower(loc.Country)] = true
		}
		for range b.Count {
			userID := pl.urlUser
			if len(pl.selected) > 0 {
				userID = pl.selected[idx%len(pl.selected)]
			}
			idx++
			items = append(items, Item{UserID: userID, Payload: pl.normalPayload(b, userID)})
		}
	}
	return items
}

func (pl *planner) location(b Batch) payload.Location {
	if pl.plan.Kind == report.KindTransaction {
		return b.Transaction.Location
	}
	return b.Login.Location
}

func (pl *planner) normalPayload(b Batch, userID string) any {
	dev := pl.device(userID)
	if pl.plan.Kind == report.KindTransaction {
		ctx := b.Transaction
		ctx.TimeTaken = pl.randomTimeTaken(ctx.TimeTaken, ctx.TimeTakenMin, ctx.TimeTakenMax)
		ctx.Amount = payload.Num(pl.builder.RandomInt(
			orInt(ctx.AmountMin, defaultAmountMin), orInt(ctx.AmountMax, defaultAmountMax)))
		ctx.Timestamp = pl.builder.RandomTimestamp(ctx.TimestampStart, ctx.TimestampEnd)
		tx := pl.builder.Transaction(dev, ctx, b.Channel.WithDefaults(), userID)

		if tx.TransactionDetails.TimeTaken != nil {
			pl.maxTimeTaken = max(pl.maxTimeTaken, *tx.TransactionDetails.TimeTaken)
		}
		pl.maxAmount = max(pl.maxAmount, tx.TransactionDetails.TransactionAmount)
		return tx
	}

	ctx := b.Login
	ctx.TimeTaken = pl.randomTimeTaken(ctx.TimeTaken, ctx.TimeTakenMin, ctx.TimeTakenMax)
	ctx.Timestamp = pl.builder.RandomTimestamp(ctx.TimestampStart, ctx.TimestampEnd)
	login := pl.builder.Login(dev, ctx, userID)
	pl.maxTimeTaken = max(pl.maxTimeTaken, *login.DeviceDetails.TimeTakenToCompleteLogin)
	return login
}

// randomTimeTaken draws from [lo, hi]. Without bounds the single value is kept.
func (pl *planner) randomTimeTaken(single, lo, hi payload.Num) payload.Num {
	if lo == 0 && hi == 0 {
		return single
	}
	return payload.Num(pl.builder.RandomInt(int(lo), int(hi)))
}

// fraud builds the injected payloads: a random device in a city and country
// no normal batch used, taking far longer and, for transactions, moving far
// more money than any normal payload.
func (pl *planner) fraud() []Item {
	n := pl.plan.Fraud
	if n == 0 {
		return nil
	}
	cities := unused(payload.AllCities(), pl.usedCities)
	countries := unused(payload.AllCountries(), pl.usedCountries)

	maxTimeTaken, maxAmount := pl.maxTimeTaken, pl.maxAmount
	if totalCount(pl.plan.Batches) == 0 {
		maxTimeTaken, maxAmount = loginMaxTimeTaken, transactionMaxAmount
		if pl.plan.Kind == report.KindTransaction {
			maxTimeTaken = transactionMaxTimeTaken
		}
	}

	var base Batch
	if len(pl.plan.Batches) > 0 {
		base = pl.plan.Batches[0]
	}

	items := make([]Item, 0, n)
	for i := range n {
		userID := pl.urlUser
		if len(pl.selected) > 0 {
			userID = random.Pick(pl.rng, pl.selected)
		}
		city, country := unknownCity, unknownCountry
		if len(cities) > 0 {
			city = cities[i%len(cities)]
		}
		if len(countries) > 0 {
			country = countries[i%len(countries)]
		}
		timeTaken := payload.Num(maxTimeTaken + 100*(1+pl.rng.Float64()))
		dev := pl.devices.Random(pl.dt)

		var body any
		if pl.plan.Kind == report.KindTransaction {
			ctx := base.Transaction
			ctx.City, ctx.Country, ctx.TimeTaken = city, country, timeTaken
			ctx.Amount = payload.Num(pl.builder.RandomInt(
				int(maxAmount)+100000, (int(maxAmount)+200000)*2))
			body = pl.builder.Transaction(dev, ctx, base.Channel.WithDefaults(), userID)
		} else {
			ctx := base.Login
			ctx.City, ctx.Country, ctx.TimeTaken = city, country, timeTaken
			body = pl.builder.Login(dev, ctx, userID)
		}
		items = append(items, Item{UserID: userID, Fraud: true, Payload: body})
	}
	return items
}

func unused(all []string, used map[string]bool) []string {
	out := make([]string, 0, len(all))
	for _, v := range all {
		if !used[strings.ToLower(v)] {
			out = append(out, v)
		}
	}
	return out
}

func totalCount(batches []Batch) int {
	n := 0
	for _, b := range batches {
		n += b.Count
	}
	return n
}

func orInt(v payload.Num, def int) int {
	if v == 0 {
		return def
	}
	return int(v)
}

func queryUserID(target string) string {
	_, rawQuery, _ := strings.Cut(target, "?")
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		logger.Debugf("[Batch] partial target query %q: %v", rawQuery, err)
	}
	return q.Get("userId")
}

// withUserID merges userId into a successful upstream object. Failures, and
// answers that are not JSON objects, become {resultData: null, userId}.
func withUserID(body json.RawMessage, ok bool, userID string) json.RawMessage {
	user := userID
	if user == "" {
		user = "Unknown"
	}
	fields := map[string]json.RawMessage{}
	if !ok || json.Unmarshal(body, &fields) != nil || fields == nil {
		fields = map[string]json.RawMessage{"resultData": json.RawMessage("null")}
	}
	quoted, err := json.Marshal(user)
	if err != nil {
		return json.RawMessage(`{"resultData":null,"userId":"Unknown"}`)
	}
	fields["userId"] = quoted
	out, err := json.Marshal(fields)
	if err != nil {
		return json.RawMessage(`{"resultData":null,"userId":"Unknown"}`)
	}
	return out
}
