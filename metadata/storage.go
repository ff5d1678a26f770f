package metadata

import (
	"context"

	"github.com/mohitkumar/chatflow/model"
)

// Storage keeps the editable draft of every flow and its immutable published
// versions. Missing flows are reported with persistence.ErrNotFound.
type Storage interface {
	SaveDraft(ctx context.Context, g *model.Graph) error
	GetDraft(ctx context.Context, id string) (*model.Graph, error)
	ListFlows(ctx context.Context) ([]model.FlowSummary, error)
	DeleteFlow(ctx context.Context, id string) error
	SavePublished(ctx context.Context, g *model.Graph) error
	// GetPublished returns the given version, or the latest when version is 0.
	GetPublished(ctx context.Context, id string, version int) (*model.Graph, error)
}
