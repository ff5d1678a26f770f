package flow

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/mohitkumar/chatflow/model"
)

// Serialize writes the graph in canonical form. Nodes and edges are ordered
// by id, so equal graphs always serialize to identical bytes.
func Serialize(g *model.Graph) ([]byte, error) {
	return json.Marshal(Canonical(g))
}

// Canonical returns a copy of g with sorted nodes and edges and empty rather
// than nil collections.
func Canonical(g *model.Graph) *model.Graph {
	c := *g
	c.Nodes = make([]model.Node, len(g.Nodes))
	copy(c.Nodes, g.Nodes)
	c.Edges = make([]model.Edge, len(g.Edges))
	copy(c.Edges, g.Edges)
	sort.SliceStable(c.Nodes, func(i, j int) bool { return c.Nodes[i].Id < c.Nodes[j].Id })
	sort.SliceStable(c.Edges, func(i, j int) bool { return c.Edges[i].Id < c.Edges[j].Id })
	return &c
}

func Deserialize(data []byte) (*model.Graph, error) {
	if len(data) == 0 {
		return nil, ParseError{Err: errors.New("empty document")}
	}
	var g model.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, ParseError{Err: err}
	}
	if g.Nodes == nil {
		g.Nodes = []model.Node{}
	}
	if g.Edges == nil {
		g.Edges = []model.Edge{}
	}
	return &g, nil
}
