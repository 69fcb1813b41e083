package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebricks/rba-harness/internal/exchangelog"
)

type memRepo struct {
	mu      sync.Mutex
	batches [][]ExchangeRecord
}

func (m *memRepo) EnsureSchema(ctx context.Context) error { return nil }

func (m *memRepo) InsertBatch(ctx context.Context, records []ExchangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]ExchangeRecord(nil), records...))
	return nil
}

func (m *memRepo) Recent(ctx context.Context, limit int) ([]ExchangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ExchangeRecord
	for i := len(m.batches) - 1; i >= 0; i-- {
		for j := len(m.batches[i]) - 1; j >= 0; j-- {
			out = append(out, m.batches[i][j])
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) count() (batches, records int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.batches {
		records += len(b)
	}
	return len(m.batches), records
}

func entry(id string, isError bool) exchangelog.Entry {
	return exchangelog.Entry{
		ID:        id,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Request:   map[string]any{"url": "http://upstream/rba"},
		Response:  json.RawMessage(`{"resultMessage":"ok"}`),
		IsError:   isError,
	}
}

func TestArchiveBatchesBySize(t *testing.T) {
	repo := &memRepo{}
	a := NewArchive(repo, ArchiveOptions{BatchSize: 2, FlushEvery: time.Hour})
	a.Start()
	for _, id := range []string{"a", "b", "c"} {
		a.Publish(entry(id, false))
	}
	a.Stop(context.Background())

	batches, records := repo.count()
	assert.Equal(t, 2, batches)
	assert.Equal(t, 3, records)

	recent, err := a.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "http://upstream/rba", recent[0].URL)
	assert.JSONEq(t, `{"resultMessage":"ok"}`, string(recent[0].Response))
}

func TestArchiveFlushesOnTicker(t *testing.T) {
	repo := &memRepo{}
	a := NewArchive(repo, ArchiveOptions{BatchSize: 100, FlushEvery: 10 * time.Millisecond})
	a.Start()
	defer a.Stop(context.Background())

	a.Publish(entry("x", true))
	require.Eventually(t, func() bool {
		_, n := repo.count()
		return n == 1
	}, time.Second, 5*time.Millisecond)
}

func TestArchiveIgnoresOtherEventsAndDropsWhenFull(t *testing.T) {
	repo := &memRepo{}
	a := NewArchive(repo, ArchiveOptions{BatchSize: 1, QueueCapacity: 1})
	a.Publish("not an entry")
	a.Publish(entry("1", false))
	a.Publish(entry("2", false))

	a.Start()
	a.Stop(context.Background())
	_, n := repo.count()
	assert.Equal(t, 1, n)
}

func TestInsertStatement(t *testing.T) {
	q, args := insertStatement([]ExchangeRecord{
		{ID: "a", Request: json.RawMessage(`{}`)},
		{ID: "b"},
	})
	assert.Contains(t, q, "($1, $2, $3, $4, $5, $6), ($7, $8, $9, $10, $11, $12)")
	assert.Contains(t, q, "ON CONFLICT (id) DO NOTHING")
	require.Len(t, args, 12)
	assert.Equal(t, "{}", args[3])
	assert.Nil(t, args[10])
}

func TestMarshalJSON(t *testing.T) {
	assert.Equal(t, json.RawMessage(`{"a":1}`), marshalJSON(json.RawMessage(`{"a":1}`)))
	assert.JSONEq(t, `"not json"`, string(marshalJSON(json.RawMessage(`not json`))))
	assert.JSONEq(t, `{"k":"v"}`, string(marshalJSON(map[string]string{"k": "v"})))
}

// TestPostgresExchangeRepository runs against a real database when
// ARCHIVE_TEST_DATABASE_URL is set.
func TestPostgresExchangeRepository(t *testing.T) {
	dsn := os.Getenv("ARCHIVE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ARCHIVE_TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	repo := NewPostgresExchangeRepository(db)
	require.NoError(t, repo.EnsureSchema(ctx))

	id := uuid.NewString()
	rec := ExchangeRecord{
		ID:        id,
		CreatedAt: time.Now().UTC().Add(time.Hour),
		URL:       "http://upstream/rba",
		Request:   json.RawMessage(`{"url":"http://upstream/rba"}`),
		Response:  json.RawMessage(`{"resultMessage":"ok"}`),
	}
	require.NoError(t, repo.InsertBatch(ctx, []ExchangeRecord{rec, rec}))

	recent, err := repo.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, id, recent[0].ID)
	assert.JSONEq(t, `{"resultMessage":"ok"}`, string(recent[0].Response))
}
