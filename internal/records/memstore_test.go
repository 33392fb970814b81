package records

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	apperrors "github.com/EarthNatchanon/Topgun2/internal/errors"
	"github.com/EarthNatchanon/Topgun2/internal/models"
)

// memStore is an in-memory Store with the same observable semantics as the
// Postgres gateway: ids are assigned on insert, a failed write changes
// nothing, and List is newest first.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]models.Record
	fail   bool
	calls  int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int64]models.Record)}
}

var errDown = &apperrors.PersistenceError{Op: "test", Err: errors.New("database unavailable")}

func (m *memStore) Insert(ctx context.Context, rec models.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return 0, errDown
	}
	m.nextID++
	rec.ID = m.nextID
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	m.rows[rec.ID] = rec
	return rec.ID, nil
}

func (m *memStore) List(ctx context.Context) ([]models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return nil, errDown
	}
	out := make([]models.Record, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *memStore) Get(ctx context.Context, id int64) (models.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return models.Record{}, false, errDown
	}
	r, ok := m.rows[id]
	return r, ok, nil
}

func (m *memStore) Update(ctx context.Context, id int64, rec models.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return false, errDown
	}
	old, ok := m.rows[id]
	if !ok {
		return false, nil
	}
	rec.ID = id
	if rec.Timestamp.IsZero() {
		rec.Timestamp = old.Timestamp
	}
	m.rows[id] = rec
	return true, nil
}

func (m *memStore) Delete(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return false, errDown
	}
	if _, ok := m.rows[id]; !ok {
		return false, nil
	}
	delete(m.rows, id)
	return true, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memStore) CountRange(ctx context.Context, from, to time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return 0, errDown
	}
	var n int64
	for _, r := range m.rows {
		if !from.IsZero() && r.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && !r.Timestamp.Before(to) {
			continue
		}
		n++
	}
	return n, nil
}
