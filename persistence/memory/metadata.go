package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mohitkumar/chatflow/flow"
	"github.com/mohitkumar/chatflow/metadata"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
)

var _ metadata.Storage = new(metadataStorage)

// metadataStorage keeps canonical serialized bytes so callers never share
// graph slices with the store.
type metadataStorage struct {
	mu        sync.RWMutex
	drafts    map[string][]byte
	published map[string]map[int][]byte
	latest    map[string]int
}

func NewMetadataStorage() *metadataStorage {
	return &metadataStorage{
		drafts:    make(map[string][]byte),
		published: make(map[string]map[int][]byte),
		latest:    make(map[string]int),
	}
}

func (m *metadataStorage) SaveDraft(_ context.Context, g *model.Graph) error {
	data, err := flow.Serialize(g)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[g.Id] = data
	return nil
}

func (m *metadataStorage) GetDraft(_ context.Context, id string) (*model.Graph, error) {
	m.mu.RLock()
	data, ok := m.drafts[id]
	m.mu.RUnlock()
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return flow.Deserialize(data)
}

func (m *metadataStorage) ListFlows(_ context.Context) ([]model.FlowSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.FlowSummary, 0, len(m.drafts))
	for id, data := range m.drafts {
		g, err := flow.Deserialize(data)
		if err != nil {
			return nil, err
		}
		out = append(out, model.FlowSummary{Id: id, Name: g.Name, Version: g.Version, PublishedVersion: m.latest[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (m *metadataStorage) DeleteFlow(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drafts[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.drafts, id)
	delete(m.published, id)
	delete(m.latest, id)
	return nil
}

func (m *metadataStorage) SavePublished(_ context.Context, g *model.Graph) error {
	data, err := flow.Serialize(g)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.published[g.Id] == nil {
		m.published[g.Id] = make(map[int][]byte)
	}
	m.published[g.Id][g.Version] = data
	if g.Version > m.latest[g.Id] {
		m.latest[g.Id] = g.Version
	}
	return nil
}

func (m *metadataStorage) GetPublished(_ context.Context, id string, version int) (*model.Graph, error) {
	m.mu.RLock()
	if version == 0 {
		version = m.latest[id]
	}
	data, ok := m.published[id][version]
	m.mu.RUnlock()
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return flow.Deserialize(data)
}
