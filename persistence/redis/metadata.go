package redis

import (
	"context"
	"errors"
	"sort"
	"strconv"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/chatflow/flow"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/metadata"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"go.uber.org/zap"
)

const (
	FLOW_DRAFT     string = "FLOW_DRAFT"
	FLOW_PUBLISHED string = "FLOW_PUBLISHED"
	FLOW_LATEST    string = "FLOW_LATEST"
	FLOWS          string = "FLOWS"
)

var _ metadata.Storage = new(metadataStorage)

type metadataStorage struct {
	*baseDao
}

func NewMetadataStorage(client rd.UniversalClient, namespace string) *metadataStorage {
	return &metadataStorage{
		baseDao: newBaseDao(client, namespace),
	}
}

func (m *metadataStorage) SaveDraft(ctx context.Context, g *model.Graph) error {
	data, err := flow.Serialize(g)
	if err != nil {
		return err
	}
	_, err = m.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.Set(ctx, m.getNamespaceKey(FLOW_DRAFT, g.Id), data, 0)
		pipe.SAdd(ctx, m.getNamespaceKey(FLOWS), g.Id)
		return nil
	})
	if err != nil {
		logger.Error("error in saving flow draft", zap.String("flowId", g.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (m *metadataStorage) GetDraft(ctx context.Context, id string) (*model.Graph, error) {
	data, err := m.redisClient.Get(ctx, m.getNamespaceKey(FLOW_DRAFT, id)).Bytes()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.ErrNotFound
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return flow.Deserialize(data)
}

func (m *metadataStorage) ListFlows(ctx context.Context) ([]model.FlowSummary, error) {
	ids, err := m.redisClient.SMembers(ctx, m.getNamespaceKey(FLOWS)).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	sort.Strings(ids)
	latest, err := m.redisClient.HGetAll(ctx, m.getNamespaceKey(FLOW_LATEST)).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]model.FlowSummary, 0, len(ids))
	for _, id := range ids {
		g, err := m.GetDraft(ctx, id)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				continue
			}
			return nil, err
		}
		published, _ := strconv.Atoi(latest[id])
		out = append(out, model.FlowSummary{Id: id, Name: g.Name, Version: g.Version, PublishedVersion: published})
	}
	return out, nil
}

func (m *metadataStorage) DeleteFlow(ctx context.Context, id string) error {
	var removed *rd.IntCmd
	_, err := m.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		removed = pipe.Del(ctx, m.getNamespaceKey(FLOW_DRAFT, id))
		pipe.Del(ctx, m.getNamespaceKey(FLOW_PUBLISHED, id))
		pipe.HDel(ctx, m.getNamespaceKey(FLOW_LATEST), id)
		pipe.SRem(ctx, m.getNamespaceKey(FLOWS), id)
		return nil
	})
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if removed.Val() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (m *metadataStorage) SavePublished(ctx context.Context, g *model.Graph) error {
	data, err := flow.Serialize(g)
	if err != nil {
		return err
	}
	_, err = m.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.HSet(ctx, m.getNamespaceKey(FLOW_PUBLISHED, g.Id), strconv.Itoa(g.Version), data)
		pipe.HSet(ctx, m.getNamespaceKey(FLOW_LATEST), g.Id, strconv.Itoa(g.Version))
		return nil
	})
	if err != nil {
		logger.Error("error in saving published flow", zap.String("flowId", g.Id), zap.Int("version", g.Version), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (m *metadataStorage) GetPublished(ctx context.Context, id string, version int) (*model.Graph, error) {
	if version == 0 {
		latest, err := m.redisClient.HGet(ctx, m.getNamespaceKey(FLOW_LATEST), id).Int()
		if err != nil {
			if errors.Is(err, rd.Nil) {
				return nil, persistence.ErrNotFound
			}
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		version = latest
	}
	data, err := m.redisClient.HGet(ctx, m.getNamespaceKey(FLOW_PUBLISHED, id), strconv.Itoa(version)).Bytes()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.ErrNotFound
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return flow.Deserialize(data)
}
