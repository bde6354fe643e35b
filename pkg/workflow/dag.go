// Package workflow implements the Workflow Engine (C6): DAG construction from
// a Planner agent's decomposition, Kahn-layered wave computation, conflict
// detection, wave-parallel execution, and checkpointing.
//
// The graph is a plain adjacency-list arena: tasks reference each other by
// id, never by pointer, so checkpoint serialization is a straight walk.
package workflow

import (
	"github.com/codeready-toolchain/agentflow/pkg/model"
	"github.com/codeready-toolchain/agentflow/pkg/orcherr"
)

// Builder accumulates task nodes and dependency edges before Build validates
// and layers them into a Workflow.
type Builder struct {
	nodes []model.TaskNode
	index map[model.TaskID]int
	edges []model.DependencyEdge
}

func NewBuilder() *Builder {
	return &Builder{index: make(map[model.TaskID]int)}
}

// AddTask registers a task node. Duplicate task ids are rejected.
func (b *Builder) AddTask(n model.TaskNode) error {
	if _, exists := b.index[n.TaskID]; exists {
		return orcherr.New(orcherr.KindDagConstruction, "workflow.AddTask", orcherr.ErrAlreadyExists)
	}
	b.index[n.TaskID] = len(b.nodes)
	b.nodes = append(b.nodes, n)
	return nil
}

// AddDependency registers an edge. Both endpoints must already be registered.
func (b *Builder) AddDependency(e model.DependencyEdge) error {
	if _, ok := b.index[e.From]; !ok {
		return orcherr.New(orcherr.KindDagConstruction, "workflow.AddDependency", orcherr.ErrDanglingEdge)
	}
	if _, ok := b.index[e.To]; !ok {
		return orcherr.New(orcherr.KindDagConstruction, "workflow.AddDependency", orcherr.ErrDanglingEdge)
	}
	b.edges = append(b.edges, e)
	return nil
}

// Build validates the graph (cycle check) and computes the canonical Kahn
// layering. Fails with a DagConstruction error on cycle.
func (b *Builder) Build(id model.WorkflowID) (model.Workflow, error) {
	adjacency := make(map[model.TaskID][]model.TaskID, len(b.nodes))
	indegree := make(map[model.TaskID]int, len(b.nodes))
	for _, n := range b.nodes {
		indegree[n.TaskID] = 0
	}
	for _, e := range b.edges {
		adjacency[e.From] = append(adjacency[e.From], e.To)
		indegree[e.To]++
	}

	if err := checkAcyclic(b.nodes, adjacency); err != nil {
		return model.Workflow{}, err
	}

	waves := kahnWaves(b.nodes, adjacency, indegree)

	return model.Workflow{
		ID:    id,
		Nodes: append([]model.TaskNode(nil), b.nodes...),
		Edges: append([]model.DependencyEdge(nil), b.edges...),
		Waves: waves,
	}, nil
}

// checkAcyclic runs a DFS with three-coloring (white/gray/black) and fails on
// a back-edge (gray -> gray).
func checkAcyclic(nodes []model.TaskNode, adjacency map[model.TaskID][]model.TaskID) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[model.TaskID]int, len(nodes))
	for _, n := range nodes {
		color[n.TaskID] = white
	}

	var visit func(model.TaskID) error
	visit = func(id model.TaskID) error {
		color[id] = gray
		for _, next := range adjacency[id] {
			switch color[next] {
			case gray:
				return orcherr.New(orcherr.KindDagConstruction, "workflow.checkAcyclic", orcherr.ErrCycleDetected)
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, n := range nodes {
		if color[n.TaskID] == white {
			if err := visit(n.TaskID); err != nil {
				return err
			}
		}
	}
	return nil
}

// kahnWaves repeatedly drains all tasks whose unvisited in-degree is zero
// into a new wave, guaranteeing every task appears in exactly one wave and a
// task's wave index is strictly greater than any predecessor's.
func kahnWaves(nodes []model.TaskNode, adjacency map[model.TaskID][]model.TaskID, indegree map[model.TaskID]int) [][]model.TaskID {
	remaining := make(map[model.TaskID]int, len(indegree))
	for k, v := range indegree {
		remaining[k] = v
	}

	var order []model.TaskID
	for _, n := range nodes {
		order = append(order, n.TaskID)
	}

	var waves [][]model.TaskID
	placed := make(map[model.TaskID]bool, len(nodes))

	for len(placed) < len(nodes) {
		var wave []model.TaskID
		for _, id := range order {
			if placed[id] {
				continue
			}
			if remaining[id] == 0 {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			break // checkAcyclic already guarantees this cannot happen
		}
		for _, id := range wave {
			placed[id] = true
			for _, next := range adjacency[id] {
				remaining[next]--
			}
		}
		waves = append(waves, wave)
	}
	return waves
}
