package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/medconnect/rtcore/internal/core/domain"
	"github.com/medconnect/rtcore/internal/core/port"
)

// CallRepository keeps call sessions in memory. Used by tests and dev mode.
type CallRepository struct {
	mu    sync.RWMutex
	calls map[domain.CallID]*domain.CallSession
}

func NewCallRepository() *CallRepository {
	return &CallRepository{calls: make(map[domain.CallID]*domain.CallSession)}
}

var _ port.CallRepository = (*CallRepository)(nil)

func (r *CallRepository) Save(_ context.Context, call *domain.CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *call
	r.calls[call.CallID] = &cp
	return nil
}

func (r *CallRepository) Update(_ context.Context, call *domain.CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *call
	r.calls[call.CallID] = &cp
	return nil
}

func (r *CallRepository) Get(_ context.Context, id domain.CallID) (*domain.CallSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	call, ok := r.calls[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *call
	return &cp, nil
}

func (r *CallRepository) HistoryFor(_ context.Context, userID domain.UserID, filter port.CallFilter, page, limit int) ([]*domain.CallSession, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	r.mu.RLock()
	var all []*domain.CallSession
	for _, c := range r.calls {
		if !c.Participant(userID) {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && c.Kind != filter.Kind {
			continue
		}
		cp := *c
		all = append(all, &cp)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}
