package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Async-Ng/ElecLab-sub001/internal/lab/entity"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/events"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/repository"
)

// RequestRepo is an in-memory request repository with the same conditional
// write semantics as the gorm one.
type RequestRepo struct {
	mu         sync.Mutex
	rows       map[string]entity.UnifiedRequest
	activities []entity.RequestActivity
	// FindGate, when set, holds FindByID callers until enough have arrived
	FindGate *Barrier
	// FailWith makes reads and creates fail
	FailWith error
}

func NewRequestRepo() *RequestRepo {
	return &RequestRepo{rows: make(map[string]entity.UnifiedRequest)}
}

// Put stores r as is, defaulting the version to 1
func (m *RequestRepo) Put(r entity.UnifiedRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Version == 0 {
		r.Version = 1
	}
	m.rows[r.ID] = r
}

func (m *RequestRepo) Get(id string) (entity.UnifiedRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	return r, ok
}

func (m *RequestRepo) FindByID(_ context.Context, id string) (*entity.UnifiedRequest, error) {
	if m.FindGate != nil {
		m.FindGate.Wait()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	r, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (m *RequestRepo) List(_ context.Context, f repository.RequestFilter, page, pageSize int) ([]entity.UnifiedRequest, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, 0, m.FailWith
	}
	var out []entity.UnifiedRequest
	for _, r := range m.rows {
		if f.RequesterID != "" && r.RequesterID != f.RequesterID {
			continue
		}
		if f.Status != "" && string(r.Status) != f.Status {
			continue
		}
		if f.Type != "" && string(r.Type) != f.Type {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := int64(len(out))
	if pageSize > 0 {
		start := (page - 1) * pageSize
		if start > len(out) {
			start = len(out)
		}
		end := start + pageSize
		if end > len(out) {
			end = len(out)
		}
		out = out[start:end]
	}
	return out, total, nil
}

func (m *RequestRepo) Create(_ context.Context, req *entity.UnifiedRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.rows[req.ID] = *req
	return nil
}

func (m *RequestRepo) UpdatePending(_ context.Context, req *entity.UnifiedRequest, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[req.ID]
	if !ok || cur.Status != entity.RequestStatusPending || cur.Version != expectedVersion {
		return repository.ErrConflict
	}
	cur.Title = req.Title
	cur.Description = req.Description
	cur.Priority = req.Priority
	cur.Materials = req.Materials
	cur.Attachments = req.Attachments
	cur.RoomID = req.RoomID
	cur.Version++
	m.rows[req.ID] = cur
	return nil
}

func (m *RequestRepo) Transition(_ context.Context, id string, from, to entity.RequestStatus, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[id]
	if !ok || cur.Status != from {
		return repository.ErrConflict
	}
	cur.Status = to
	cur.Version++
	if v, ok := fields["reviewed_by"].(string); ok {
		cur.ReviewedBy = v
		cur.ReviewedAt = timeField(fields, "reviewed_at")
		cur.ReviewNote, _ = fields["review_note"].(string)
	}
	if v, ok := fields["handled_by"].(string); ok {
		cur.HandledBy = v
		cur.HandledAt = timeField(fields, "handled_at")
	}
	if v, ok := fields["completed_by"].(string); ok {
		cur.CompletedBy = v
		cur.CompletedAt = timeField(fields, "completed_at")
		cur.CompletionNote, _ = fields["completion_note"].(string)
	}
	m.rows[id] = cur
	return nil
}

func (m *RequestRepo) DeletePending(_ context.Context, id, requesterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[id]
	if !ok || cur.RequesterID != requesterID || cur.Status != entity.RequestStatusPending {
		return repository.ErrConflict
	}
	delete(m.rows, id)
	return nil
}

func (m *RequestRepo) AddActivity(_ context.Context, a *entity.RequestActivity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities = append(m.activities, *a)
	return nil
}

func (m *RequestRepo) ListActivities(_ context.Context, requestID string) ([]entity.RequestActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.RequestActivity
	for _, a := range m.activities {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	return out, nil
}

func timeField(fields map[string]interface{}, key string) *time.Time {
	if t, ok := fields[key].(time.Time); ok {
		return &t
	}
	return nil
}

// Barrier releases every waiter once n callers have arrived; later callers pass straight through.
type Barrier struct {
	mu sync.Mutex
	n  int
	ch chan struct{}
}

func NewBarrier(n int) *Barrier {
	return &Barrier{n: n, ch: make(chan struct{})}
}

func (b *Barrier) Wait() {
	b.mu.Lock()
	if b.n > 0 {
		b.n--
		if b.n == 0 {
			close(b.ch)
		}
	}
	b.mu.Unlock()
	<-b.ch
}

// Publisher records published events
type Publisher struct {
	mu     sync.Mutex
	events []events.Event
	Err    error
}

func (p *Publisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.Err
}

// Actions lists the action of every recorded event
func (p *Publisher) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Action)
	}
	return out
}
