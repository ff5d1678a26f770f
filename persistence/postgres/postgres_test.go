package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container in short mode")
	}
	ctx := context.Background()
	var container *tcpostgres.PostgresContainer
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.New("docker unavailable")
			}
		}()
		container, err = tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("chatflow"),
			tcpostgres.WithUsername("user"),
			tcpostgres.WithPassword("password"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2)),
		)
	}()
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})
	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, CreateSchema(ctx, pool))
	return pool
}

func TestMetadataStorage(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	s := NewMetadataStorage(pool)

	g := &model.Graph{
		Id:      "f",
		Name:    "welcome",
		Version: 1,
		Nodes: []model.Node{
			{Id: "s", Type: model.NODE_START},
			{Id: "m", Type: model.NODE_MESSAGE, Config: model.NodeConfig{Message: "Hi {{name}}"}},
		},
		Edges: []model.Edge{{Id: "e1", Source: "s", Target: "m"}},
	}

	t.Run("draft round trip", func(t *testing.T) {
		require.NoError(t, s.SaveDraft(ctx, g))
		got, err := s.GetDraft(ctx, "f")
		require.NoError(t, err)
		require.Equal(t, "Hi {{name}}", got.Nodes[1].Config.Message)
		_, err = s.GetDraft(ctx, "missing")
		require.True(t, errors.Is(err, persistence.ErrNotFound))
	})

	t.Run("published versions", func(t *testing.T) {
		require.NoError(t, s.SavePublished(ctx, g))
		g2 := *g
		g2.Version = 2
		require.NoError(t, s.SavePublished(ctx, &g2))
		latest, err := s.GetPublished(ctx, "f", 0)
		require.NoError(t, err)
		require.Equal(t, 2, latest.Version)
		v1, err := s.GetPublished(ctx, "f", 1)
		require.NoError(t, err)
		require.Equal(t, 1, v1.Version)

		list, err := s.ListFlows(ctx)
		require.NoError(t, err)
		require.Equal(t, []model.FlowSummary{{Id: "f", Name: "welcome", Version: 1, PublishedVersion: 2}}, list)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.DeleteFlow(ctx, "f"))
		_, err := s.GetPublished(ctx, "f", 0)
		require.True(t, errors.Is(err, persistence.ErrNotFound))
		require.True(t, errors.Is(s.DeleteFlow(ctx, "f"), persistence.ErrNotFound))
	})
}
