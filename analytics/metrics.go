package analytics

import (
	"context"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

const (
	OUTCOME_COMPLETED = "completed"
	OUTCOME_FAILED    = "failed"
)

var (
	NodeTypeKey = tag.MustNewKey("node_type")
	OutcomeKey  = tag.MustNewKey("outcome")

	NodesExecuted    = stats.Int64("chatflow/nodes_executed", "Number of nodes executed", stats.UnitDimensionless)
	ContextsFinished = stats.Int64("chatflow/contexts_finished", "Number of contexts reaching a terminal state", stats.UnitDimensionless)
	CallRetries      = stats.Int64("chatflow/call_retries", "Number of gateway call retries scheduled", stats.UnitDimensionless)

	Views = []*view.View{
		{Name: "chatflow/nodes_executed", Measure: NodesExecuted, Aggregation: view.Count(), TagKeys: []tag.Key{NodeTypeKey}},
		{Name: "chatflow/contexts_finished", Measure: ContextsFinished, Aggregation: view.Count(), TagKeys: []tag.Key{OutcomeKey}},
		{Name: "chatflow/call_retries", Measure: CallRetries, Aggregation: view.Count()},
	}
)

func RegisterViews() error {
	return view.Register(Views...)
}

func UnregisterViews() {
	view.Unregister(Views...)
}

func recordNode(nodeType string) {
	stats.RecordWithTags(context.Background(), []tag.Mutator{tag.Upsert(NodeTypeKey, nodeType)}, NodesExecuted.M(1))
}

func recordOutcome(outcome string) {
	stats.RecordWithTags(context.Background(), []tag.Mutator{tag.Upsert(OutcomeKey, outcome)}, ContextsFinished.M(1))
}

func recordRetry() {
	stats.Record(context.Background(), CallRetries.M(1))
}
