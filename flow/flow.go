package flow

import (
	"github.com/mohitkumar/chatflow/model"
)

// Flow is an immutable, compiled published graph used by the interpreter.
type Flow struct {
	Id       string
	Name     string
	Version  int
	StartId  string
	Nodes    map[string]model.Node
	next     map[string]string
	branches map[string]map[string]string
}

// Compile indexes a graph for execution. Graphs with fatal issues are
// rejected.
func Compile(g *model.Graph) (*Flow, error) {
	issues := Validate(g)
	var fatal []Issue
	for _, is := range issues {
		if is.Severity == SEVERITY_FATAL {
			fatal = append(fatal, is)
		}
	}
	if len(fatal) > 0 {
		return nil, GraphValidationError{Issues: fatal}
	}
	fl := &Flow{
		Id:       g.Id,
		Name:     g.Name,
		Version:  g.Version,
		Nodes:    make(map[string]model.Node, len(g.Nodes)),
		next:     make(map[string]string),
		branches: make(map[string]map[string]string),
	}
	for _, n := range g.Nodes {
		fl.Nodes[n.Id] = n
		if n.Type == model.NODE_START {
			fl.StartId = n.Id
		}
	}
	for _, e := range g.Edges {
		if fl.Nodes[e.Source].Type == model.NODE_CONDITION {
			if fl.branches[e.Source] == nil {
				fl.branches[e.Source] = make(map[string]string, 2)
			}
			fl.branches[e.Source][e.SourceHandle] = e.Target
			continue
		}
		fl.next[e.Source] = e.Target
	}
	return fl, nil
}

func (f *Flow) Node(id string) (model.Node, bool) {
	n, ok := f.Nodes[id]
	return n, ok
}

// Next returns the single successor of a non-branching node.
func (f *Flow) Next(nodeId string) (string, bool) {
	id, ok := f.next[nodeId]
	return id, ok
}

// Branch returns the successor of a condition node for the given handle.
func (f *Flow) Branch(nodeId string, handle string) (string, bool) {
	id, ok := f.branches[nodeId][handle]
	return id, ok
}
