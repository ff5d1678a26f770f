package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/chatflow/flow"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	c "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

type MetadataService interface {
	// ImportDraft parses editor JSON and stores it as the flow's draft. Drafts
	// are stored even when they carry validation issues.
	ImportDraft(ctx context.Context, data []byte) (*model.Graph, []flow.Issue, error)
	SaveDraft(ctx context.Context, g *model.Graph) (*model.Graph, []flow.Issue, error)
	GetDraft(ctx context.Context, id string) (*model.Graph, error)
	ExportDraft(ctx context.Context, id string) ([]byte, error)
	ListFlows(ctx context.Context) ([]model.FlowSummary, error)
	DeleteFlow(ctx context.Context, id string) error
	ValidateDraft(ctx context.Context, id string) ([]flow.Issue, error)
	Publish(ctx context.Context, id string) (*model.Graph, error)
	// GetFlow returns a compiled published flow; version 0 means latest.
	GetFlow(ctx context.Context, id string, version int) (*flow.Flow, error)
}

var _ MetadataService = new(MetadataServiceImpl)

type MetadataServiceImpl struct {
	storage Storage
	cache   *c.Cache
	mu      sync.Mutex
}

func NewMetadataService(storage Storage) *MetadataServiceImpl {
	return &MetadataServiceImpl{
		storage: storage,
		cache:   c.New(30*time.Minute, 10*time.Minute),
	}
}

func (s *MetadataServiceImpl) ImportDraft(ctx context.Context, data []byte) (*model.Graph, []flow.Issue, error) {
	g, err := flow.Deserialize(data)
	if err != nil {
		return nil, nil, err
	}
	// an import always replaces the draft wholesale
	g.Version = 0
	return s.SaveDraft(ctx, g)
}

func (s *MetadataServiceImpl) SaveDraft(ctx context.Context, g *model.Graph) (*model.Graph, []flow.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.Id == "" {
		g.Id = uuid.NewString()
	}
	current := 0
	existing, err := s.storage.GetDraft(ctx, g.Id)
	switch {
	case err == nil:
		current = existing.Version
	case !errors.Is(err, persistence.ErrNotFound):
		return nil, nil, err
	}
	if g.Version != 0 && g.Version != current {
		return nil, nil, persistence.ConcurrencyConflictError{Key: g.Id, Expected: int64(g.Version), Actual: int64(current)}
	}
	draft := flow.Canonical(g)
	draft.Version = current + 1
	if err := s.storage.SaveDraft(ctx, draft); err != nil {
		return nil, nil, err
	}
	issues := flow.Validate(draft)
	logger.Info("flow draft saved", zap.String("flowId", draft.Id), zap.Int("version", draft.Version), zap.Int("issues", len(issues)))
	return draft, issues, nil
}

func (s *MetadataServiceImpl) GetDraft(ctx context.Context, id string) (*model.Graph, error) {
	return s.storage.GetDraft(ctx, id)
}

func (s *MetadataServiceImpl) ExportDraft(ctx context.Context, id string) ([]byte, error) {
	g, err := s.storage.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	return flow.Serialize(g)
}

func (s *MetadataServiceImpl) ListFlows(ctx context.Context) ([]model.FlowSummary, error) {
	return s.storage.ListFlows(ctx)
}

func (s *MetadataServiceImpl) DeleteFlow(ctx context.Context, id string) error {
	if err := s.storage.DeleteFlow(ctx, id); err != nil {
		return err
	}
	prefix := id + ":"
	for k := range s.cache.Items() {
		if strings.HasPrefix(k, prefix) {
			s.cache.Delete(k)
		}
	}
	return nil
}

func (s *MetadataServiceImpl) ValidateDraft(ctx context.Context, id string) ([]flow.Issue, error) {
	g, err := s.storage.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	return flow.Validate(g), nil
}

// Publish freezes the current draft as the next published version.
func (s *MetadataServiceImpl) Publish(ctx context.Context, id string) (*model.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft, err := s.storage.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := flow.ValidateForPublish(draft); err != nil {
		logger.Info("flow publish rejected", zap.String("flowId", id), zap.Error(err))
		return nil, err
	}
	next := 1
	latest, err := s.storage.GetPublished(ctx, id, 0)
	switch {
	case err == nil:
		next = latest.Version + 1
	case !errors.Is(err, persistence.ErrNotFound):
		return nil, err
	}
	published := flow.Canonical(draft)
	published.Version = next
	if err := s.storage.SavePublished(ctx, published); err != nil {
		return nil, err
	}
	logger.Info("flow published", zap.String("flowId", id), zap.Int("version", next))
	return published, nil
}

func (s *MetadataServiceImpl) GetFlow(ctx context.Context, id string, version int) (*flow.Flow, error) {
	if version != 0 {
		if fl, found := s.cache.Get(cacheKey(id, version)); found {
			return fl.(*flow.Flow), nil
		}
	}
	g, err := s.storage.GetPublished(ctx, id, version)
	if err != nil {
		return nil, err
	}
	if fl, found := s.cache.Get(cacheKey(id, g.Version)); found {
		return fl.(*flow.Flow), nil
	}
	fl, err := flow.Compile(g)
	if err != nil {
		return nil, fmt.Errorf("published flow %s version %d is not executable: %w", id, g.Version, err)
	}
	s.cache.SetDefault(cacheKey(id, g.Version), fl)
	return fl, nil
}

func cacheKey(id string, version int) string {
	return fmt.Sprintf("%s:%d", id, version)
}
