package flow

import (
	"fmt"

	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/registry"
)

type Severity string

const (
	SEVERITY_FATAL   Severity = "fatal"
	SEVERITY_WARNING Severity = "warning"
)

const (
	ISSUE_MISSING_ID         = "missing_id"
	ISSUE_DUPLICATE_NODE     = "duplicate_node"
	ISSUE_DUPLICATE_EDGE     = "duplicate_edge"
	ISSUE_UNKNOWN_TYPE       = "unknown_type"
	ISSUE_DANGLING_EDGE      = "dangling_edge"
	ISSUE_MISSING_START      = "missing_start"
	ISSUE_MULTIPLE_START     = "multiple_start"
	ISSUE_START_INCOMING     = "start_incoming"
	ISSUE_CONDITION_BRANCHES = "condition_branches"
	ISSUE_TOO_MANY_OUTGOING  = "too_many_outgoing"
	ISSUE_END_OUTGOING       = "end_outgoing"
	ISSUE_UNREACHABLE        = "unreachable"
	ISSUE_INVALID_CONFIG     = "invalid_config"
)

type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	NodeId   string   `json:"nodeId,omitempty"`
	EdgeId   string   `json:"edgeId,omitempty"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	switch {
	case i.NodeId != "":
		return fmt.Sprintf("%s node %s: %s", i.Severity, i.NodeId, i.Message)
	case i.EdgeId != "":
		return fmt.Sprintf("%s edge %s: %s", i.Severity, i.EdgeId, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Severity, i.Message)
}

func HasFatal(issues []Issue) bool {
	for _, is := range issues {
		if is.Severity == SEVERITY_FATAL {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants of a graph and the configuration
// of each node. Structural violations are fatal; unreachable nodes and bad
// node configuration are warnings, tolerated while the graph is a draft.
func Validate(g *model.Graph) []Issue {
	var issues []Issue
	fatal := func(code, nodeId, edgeId, format string, args ...any) {
		issues = append(issues, Issue{Severity: SEVERITY_FATAL, Code: code, NodeId: nodeId, EdgeId: edgeId, Message: fmt.Sprintf(format, args...)})
	}
	warn := func(code, nodeId, format string, args ...any) {
		issues = append(issues, Issue{Severity: SEVERITY_WARNING, Code: code, NodeId: nodeId, Message: fmt.Sprintf(format, args...)})
	}

	nodes := make(map[string]*model.Node, len(g.Nodes))
	var starts []string
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Id == "" {
			fatal(ISSUE_MISSING_ID, "", "", "node at index %d has no id", i)
			continue
		}
		if _, ok := nodes[n.Id]; ok {
			fatal(ISSUE_DUPLICATE_NODE, n.Id, "", "node id %s is duplicate", n.Id)
			continue
		}
		nodes[n.Id] = n
		if !registry.IsKnown(n.Type) {
			fatal(ISSUE_UNKNOWN_TYPE, n.Id, "", "unknown node type %q", n.Type)
			continue
		}
		if n.Type == model.NODE_START {
			starts = append(starts, n.Id)
		}
	}
	switch {
	case len(starts) == 0:
		fatal(ISSUE_MISSING_START, "", "", "graph has no start node")
	case len(starts) > 1:
		for _, id := range starts[1:] {
			fatal(ISSUE_MULTIPLE_START, id, "", "graph has more than one start node")
		}
	}

	edgeIds := make(map[string]bool, len(g.Edges))
	outgoing := make(map[string][]model.Edge)
	incoming := make(map[string]int)
	for i, e := range g.Edges {
		if e.Id == "" {
			fatal(ISSUE_MISSING_ID, "", "", "edge at index %d has no id", i)
			continue
		}
		if edgeIds[e.Id] {
			fatal(ISSUE_DUPLICATE_EDGE, "", e.Id, "edge id %s is duplicate", e.Id)
			continue
		}
		edgeIds[e.Id] = true
		_, srcOk := nodes[e.Source]
		_, dstOk := nodes[e.Target]
		if !srcOk || !dstOk {
			fatal(ISSUE_DANGLING_EDGE, "", e.Id, "edge references unknown node (source %q, target %q)", e.Source, e.Target)
			continue
		}
		outgoing[e.Source] = append(outgoing[e.Source], e)
		incoming[e.Target]++
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]
		if nodes[n.Id] != n || !registry.IsKnown(n.Type) {
			continue
		}
		out := outgoing[n.Id]
		switch n.Type {
		case model.NODE_CONDITION:
			var yes, no int
			for _, e := range out {
				switch e.SourceHandle {
				case model.HANDLE_YES:
					yes++
				case model.HANDLE_NO:
					no++
				}
			}
			if len(out) != 2 || yes != 1 || no != 1 {
				fatal(ISSUE_CONDITION_BRANCHES, n.Id, "", "condition needs exactly one \"yes\" and one \"no\" outgoing edge, has %d edges", len(out))
			}
		case model.NODE_END:
			if len(out) > 0 {
				warn(ISSUE_END_OUTGOING, n.Id, "outgoing edges of an end node are never followed")
			}
		default:
			if len(out) > 1 {
				fatal(ISSUE_TOO_MANY_OUTGOING, n.Id, "", "only condition nodes may branch, node has %d outgoing edges", len(out))
			}
		}
		if n.Type == model.NODE_START && incoming[n.Id] > 0 {
			fatal(ISSUE_START_INCOMING, n.Id, "", "start node must not have incoming edges")
		}
		if schema, err := registry.SchemaFor(n.Type); err == nil {
			for _, fe := range schema.Validate(n.Config) {
				warn(ISSUE_INVALID_CONFIG, n.Id, "%s", fe.Error())
			}
		}
	}

	if len(starts) == 1 {
		reached := reachable(starts[0], outgoing)
		for _, n := range g.Nodes {
			if _, ok := nodes[n.Id]; !ok || n.Type == model.NODE_START || reached[n.Id] {
				continue
			}
			if incoming[n.Id] == 0 {
				warn(ISSUE_UNREACHABLE, n.Id, "node has no incoming edge")
			} else {
				warn(ISSUE_UNREACHABLE, n.Id, "node is not reachable from start")
			}
		}
	}
	return issues
}

// ValidateForPublish applies publish-time strictness: every issue, warnings
// included, blocks the publish.
func ValidateForPublish(g *model.Graph) error {
	issues := Validate(g)
	if len(issues) == 0 {
		return nil
	}
	configOnly := true
	for i := range issues {
		issues[i].Severity = SEVERITY_FATAL
		if issues[i].Code != ISSUE_INVALID_CONFIG {
			configOnly = false
		}
	}
	if configOnly {
		return ConfigValidationError{Issues: issues}
	}
	return GraphValidationError{Issues: issues}
}

func reachable(start string, outgoing map[string][]model.Edge) map[string]bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range outgoing[cur] {
			if !seen[e.Target] {
				seen[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	return seen
}
