package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/stretchr/testify/require"
)

func TestMetadataStorage(t *testing.T) {
	ctx := context.Background()
	s := NewMetadataStorage()
	g := &model.Graph{Id: "f", Name: "flow", Version: 1, Nodes: []model.Node{{Id: "s", Type: model.NODE_START}}}
	require.NoError(t, s.SaveDraft(ctx, g))
	got, err := s.GetDraft(ctx, "f")
	require.NoError(t, err)
	require.Equal(t, "flow", got.Name)

	_, err = s.GetPublished(ctx, "f", 0)
	require.True(t, errors.Is(err, persistence.ErrNotFound))

	require.NoError(t, s.SavePublished(ctx, g))
	g2 := *g
	g2.Version = 2
	g2.Name = "flow v2"
	require.NoError(t, s.SavePublished(ctx, &g2))
	latest, err := s.GetPublished(ctx, "f", 0)
	require.NoError(t, err)
	require.Equal(t, 2, latest.Version)
	v1, err := s.GetPublished(ctx, "f", 1)
	require.NoError(t, err)
	require.Equal(t, "flow", v1.Name)

	list, err := s.ListFlows(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.FlowSummary{{Id: "f", Name: "flow", Version: 1, PublishedVersion: 2}}, list)

	require.NoError(t, s.DeleteFlow(ctx, "f"))
	_, err = s.GetDraft(ctx, "f")
	require.True(t, errors.Is(err, persistence.ErrNotFound))
	require.True(t, errors.Is(s.DeleteFlow(ctx, "f"), persistence.ErrNotFound))
}
