package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
)

var _ persistence.ContextStore = new(contextStore)

type contextStore struct {
	mu       sync.Mutex
	contexts map[model.ContextKey]*model.ExecutionContext
	history  map[model.ContextKey][]*model.ExecutionContext
}

func NewContextStore() *contextStore {
	return &contextStore{
		contexts: make(map[model.ContextKey]*model.ExecutionContext),
		history:  make(map[model.ContextKey][]*model.ExecutionContext),
	}
}

func (s *contextStore) Load(_ context.Context, key model.ContextKey) (*model.ExecutionContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ec, ok := s.contexts[key]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return ec.Clone(), nil
}

func (s *contextStore) Create(_ context.Context, ec *model.ExecutionContext) (*model.ExecutionContext, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ec.Key()
	if existing, ok := s.contexts[key]; ok {
		if existing.State.IsActive() {
			return existing.Clone(), false, nil
		}
		s.history[key] = append(s.history[key], existing)
	}
	ec.Version = 1
	s.contexts[key] = ec.Clone()
	return ec, true, nil
}

func (s *contextStore) Save(_ context.Context, ec *model.ExecutionContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ec.Key()
	stored, ok := s.contexts[key]
	if !ok {
		return persistence.ErrNotFound
	}
	if stored.Version != ec.Version || stored.Id != ec.Id {
		return persistence.ConcurrencyConflictError{Key: key.String(), Expected: ec.Version, Actual: stored.Version}
	}
	ec.Version++
	s.contexts[key] = ec.Clone()
	return nil
}

func (s *contextStore) ListDue(_ context.Context, now time.Time) ([]*model.ExecutionContext, error) {
	return s.filter(func(ec *model.ExecutionContext) bool { return persistence.IsDue(ec, now) }), nil
}

func (s *contextStore) ListRetryDue(_ context.Context, now time.Time) ([]*model.ExecutionContext, error) {
	return s.filter(func(ec *model.ExecutionContext) bool { return persistence.IsRetryDue(ec, now) }), nil
}

func (s *contextStore) ListStalled(_ context.Context, now time.Time) ([]*model.ExecutionContext, error) {
	return s.filter(func(ec *model.ExecutionContext) bool { return persistence.IsStalled(ec, now) }), nil
}

func (s *contextStore) ListByConversation(_ context.Context, conversationId string) ([]*model.ExecutionContext, error) {
	return s.filter(func(ec *model.ExecutionContext) bool { return ec.ConversationId == conversationId }), nil
}

func (s *contextStore) History(_ context.Context, key model.ContextKey) ([]*model.ExecutionContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.ExecutionContext, 0, len(s.history[key]))
	for _, ec := range s.history[key] {
		out = append(out, ec.Clone())
	}
	return out, nil
}

func (s *contextStore) filter(pred func(*model.ExecutionContext) bool) []*model.ExecutionContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.ExecutionContext
	for _, ec := range s.contexts {
		if pred(ec) {
			out = append(out, ec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out
}
