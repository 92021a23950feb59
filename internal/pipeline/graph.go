package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Stage names a node of the task graph. The values double as the states the
// pipeline passes through.
type Stage string

const (
	StageEmbedProbe     Stage = "EMBED_PROBE"
	StageIndexBuilt     Stage = "INDEX_BUILT"
	StageContextMined   Stage = "CONTEXT_MINED"
	StageAnswered       Stage = "ANSWERED"
	StageContradictions Stage = "CONTRADICTIONS_CHECKED"
	StageActions        Stage = "ACTIONS_PLANNED"
	StagePersona        Stage = "PERSONA_SHIFTED"
)

// Status is the outcome of one node.
type Status string

const (
	StatusOK        Status = "ok"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// Node is one unit of work. A node runs only after every stage in Needs and
// After has finished; it is skipped when any stage in Needs did not succeed.
type Node struct {
	Stage Stage
	Needs []Stage
	After []Stage
	Run   func(ctx context.Context, in Inputs) (string, error)
}

// Inputs exposes finished upstream outputs to a running node.
type Inputs struct {
	results map[Stage]StageResult
}

// Output returns the text of an upstream stage and whether it succeeded.
func (in Inputs) Output(s Stage) (string, bool) {
	r, ok := in.results[s]
	return r.Output, ok && r.Status == StatusOK
}

// StageResult records how one node finished.
type StageResult struct {
	Stage    Stage         `json:"stage"`
	Status   Status        `json:"status"`
	Output   string        `json:"-"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Graph is a validated DAG of nodes with a deterministic topological order.
type Graph struct {
	nodes  map[Stage]Node
	levels [][]Stage
}

// NewGraph validates dependencies and orders nodes into levels. Within a level
// nodes keep their declaration order.
func NewGraph(nodes ...Node) (*Graph, error) {
	g := &Graph{nodes: make(map[Stage]Node, len(nodes))}
	order := make([]Stage, 0, len(nodes))
	for _, n := range nodes {
		if _, dup := g.nodes[n.Stage]; dup {
			return nil, fmt.Errorf("duplicate stage %s", n.Stage)
		}
		g.nodes[n.Stage] = n
		order = append(order, n.Stage)
	}
	indegree := make(map[Stage]int, len(nodes))
	for _, s := range order {
		for _, d := range g.deps(s) {
			if _, ok := g.nodes[d]; !ok {
				return nil, fmt.Errorf("stage %s depends on unknown stage %s", s, d)
			}
			indegree[s]++
		}
	}
	placed := 0
	done := make(map[Stage]bool, len(nodes))
	for placed < len(order) {
		var level []Stage
		for _, s := range order {
			if !done[s] && indegree[s] == 0 {
				level = append(level, s)
			}
		}
		if len(level) == 0 {
			return nil, errors.New("task graph has a cycle")
		}
		for _, s := range level {
			done[s] = true
			placed++
		}
		for _, s := range order {
			if done[s] {
				continue
			}
			for _, d := range g.deps(s) {
				for _, l := range level {
					if d == l {
						indegree[s]--
					}
				}
			}
		}
		g.levels = append(g.levels, level)
	}
	return g, nil
}

func (g *Graph) deps(s Stage) []Stage {
	n := g.nodes[s]
	return append(append([]Stage(nil), n.Needs...), n.After...)
}

// Levels returns the stages grouped by dependency depth.
func (g *Graph) Levels() [][]Stage { return g.levels }

// Order returns the sequential execution order.
func (g *Graph) Order() []Stage {
	var out []Stage
	for _, l := range g.levels {
		out = append(out, l...)
	}
	return out
}

// Hooks observe node execution.
type Hooks struct {
	OnStart  func(ctx context.Context, s Stage) context.Context
	OnFinish func(ctx context.Context, r StageResult)
}

// Execute runs every node once. Sequential mode follows Order; parallel mode
// runs each level concurrently. Cancellation is checked before every node;
// nodes not started when ctx is done are reported as cancelled.
func (g *Graph) Execute(ctx context.Context, parallel bool, hooks Hooks) map[Stage]StageResult {
	var mu sync.Mutex
	results := make(map[Stage]StageResult, len(g.nodes))
	snapshot := func() Inputs {
		mu.Lock()
		defer mu.Unlock()
		cp := make(map[Stage]StageResult, len(results))
		for k, v := range results {
			cp[k] = v
		}
		return Inputs{results: cp}
	}
	record := func(r StageResult) {
		if r.Err != nil {
			r.Error = r.Err.Error()
		}
		mu.Lock()
		results[r.Stage] = r
		mu.Unlock()
	}

	for _, level := range g.levels {
		if !parallel || len(level) == 1 {
			for _, s := range level {
				record(g.runNode(ctx, s, snapshot(), hooks))
			}
			continue
		}
		in := snapshot()
		var eg errgroup.Group
		for _, s := range level {
			s := s
			eg.Go(func() error {
				record(g.runNode(ctx, s, in, hooks))
				return nil
			})
		}
		_ = eg.Wait()
	}
	return results
}

func (g *Graph) runNode(ctx context.Context, s Stage, in Inputs, hooks Hooks) StageResult {
	if err := ctx.Err(); err != nil {
		r := StageResult{Stage: s, Status: StatusCancelled, Err: err}
		if hooks.OnFinish != nil {
			hooks.OnFinish(ctx, r)
		}
		return r
	}
	node := g.nodes[s]
	for _, need := range node.Needs {
		if _, ok := in.Output(need); !ok {
			r := StageResult{Stage: s, Status: StatusSkipped, Err: &UnmetDependencyError{Stage: s, Missing: need}}
			if hooks.OnFinish != nil {
				hooks.OnFinish(ctx, r)
			}
			return r
		}
	}

	if hooks.OnStart != nil {
		ctx = hooks.OnStart(ctx, s)
	}
	start := time.Now()
	out, err := node.Run(ctx, in)
	r := StageResult{Stage: s, Status: StatusOK, Output: out, Err: err, Duration: time.Since(start)}
	if err != nil {
		r.Status = StatusFailed
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			r.Status = StatusCancelled
		}
	}
	if hooks.OnFinish != nil {
		hooks.OnFinish(ctx, r)
	}
	return r
}

// UnmetDependencyError reports a node skipped because a required upstream stage did not succeed.
type UnmetDependencyError struct {
	Stage   Stage
	Missing Stage
}

func (e *UnmetDependencyError) Error() string {
	return fmt.Sprintf("%s skipped: %s unavailable", e.Stage, e.Missing)
}
