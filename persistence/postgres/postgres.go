package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mohitkumar/chatflow/flow"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/metadata"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"go.uber.org/zap"
)

var _ metadata.Storage = new(MetadataStorage)

// MetadataStorage keeps flow drafts and published versions in PostgreSQL.
// Graphs are stored as canonical JSON text so exports stay byte-stable.
type MetadataStorage struct {
	db *pgxpool.Pool
}

func NewMetadataStorage(db *pgxpool.Pool) *MetadataStorage {
	return &MetadataStorage{db: db}
}

func (s *MetadataStorage) SaveDraft(ctx context.Context, g *model.Graph) error {
	data, err := flow.Serialize(g)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO flow_drafts (id, name, version, data, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, version = EXCLUDED.version,
		   data = EXCLUDED.data, updated_at = NOW()`,
		g.Id, g.Name, g.Version, string(data))
	if err != nil {
		logger.Error("error in saving flow draft", zap.String("flowId", g.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (s *MetadataStorage) GetDraft(ctx context.Context, id string) (*model.Graph, error) {
	var data string
	err := s.db.QueryRow(ctx, `SELECT data FROM flow_drafts WHERE id = $1`, id).Scan(&data)
	if err != nil {
		return nil, storageError(err)
	}
	return flow.Deserialize([]byte(data))
}

func (s *MetadataStorage) ListFlows(ctx context.Context) ([]model.FlowSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT d.id, d.name, d.version, COALESCE(MAX(v.version), 0)
		 FROM flow_drafts d LEFT JOIN flow_versions v ON v.flow_id = d.id
		 GROUP BY d.id, d.name, d.version
		 ORDER BY d.id`)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defer rows.Close()
	out := []model.FlowSummary{}
	for rows.Next() {
		var fs model.FlowSummary
		if err := rows.Scan(&fs.Id, &fs.Name, &fs.Version, &fs.PublishedVersion); err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		out = append(out, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return out, nil
}

func (s *MetadataStorage) DeleteFlow(ctx context.Context, id string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM flow_versions WHERE flow_id = $1`, id); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	ct, err := tx.Exec(ctx, `DELETE FROM flow_drafts WHERE id = $1`, id)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if ct.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (s *MetadataStorage) SavePublished(ctx context.Context, g *model.Graph) error {
	data, err := flow.Serialize(g)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO flow_versions (flow_id, version, data) VALUES ($1, $2, $3)
		 ON CONFLICT (flow_id, version) DO NOTHING`,
		g.Id, g.Version, string(data))
	if err != nil {
		logger.Error("error in saving published flow", zap.String("flowId", g.Id), zap.Int("version", g.Version), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (s *MetadataStorage) GetPublished(ctx context.Context, id string, version int) (*model.Graph, error) {
	var data string
	var err error
	if version == 0 {
		err = s.db.QueryRow(ctx,
			`SELECT data FROM flow_versions WHERE flow_id = $1 ORDER BY version DESC LIMIT 1`, id).Scan(&data)
	} else {
		err = s.db.QueryRow(ctx,
			`SELECT data FROM flow_versions WHERE flow_id = $1 AND version = $2`, id, version).Scan(&data)
	}
	if err != nil {
		return nil, storageError(err)
	}
	return flow.Deserialize([]byte(data))
}

func storageError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.ErrNotFound
	}
	return persistence.StorageLayerError{Message: err.Error()}
}
