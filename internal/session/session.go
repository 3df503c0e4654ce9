// Package session holds all mutable state of one analysis pass. A Session
// is created fresh for a pass and dropped when the pass ends; nothing in it
// is shared between passes.
package session

import (
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"refgraph/internal/graph"
	"refgraph/internal/scene"
)

// VisitState is the traversal state of one identity.
type VisitState int

const (
	Unseen VisitState = iota
	InProgress
	Done
)

func (v VisitState) String() string {
	switch v {
	case InProgress:
		return "in_progress"
	case Done:
		return "done"
	default:
		return "unseen"
	}
}

// Instance is one live object of a discovered type: a behavior, or a data
// asset when Asset is set.
type Instance struct {
	Behavior *scene.Behavior
	Asset    *scene.Asset
	// Node is the behavior node, or the owning entity node when behaviors
	// are not materialized.
	Node *graph.Node
}

// Session is the state of one pass. It is not safe for concurrent use.
type Session struct {
	ID       string
	Registry *graph.Registry
	Store    *graph.Store
	Logger   *slog.Logger

	inProgress map[graph.ID]bool
	done       map[graph.ID]bool
	discovered map[string][]Instance
	assets     map[string][]Instance
}

// New creates a session whose store refuses nodes beyond maxNodes.
func New(maxNodes int, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	reg := graph.NewRegistry()
	return &Session{
		ID:         id,
		Registry:   reg,
		Store:      graph.NewStore(reg, maxNodes),
		Logger:     logger.With(slog.String("pass", id)),
		inProgress: make(map[graph.ID]bool),
		done:       make(map[graph.ID]bool),
		discovered: make(map[string][]Instance),
		assets:     make(map[string][]Instance),
	}
}

// State returns the visit state of id. InProgress takes precedence: an
// object already expanded and currently on the worklist is in progress.
func (s *Session) State(id graph.ID) VisitState {
	switch {
	case s.inProgress[id]:
		return InProgress
	case s.done[id]:
		return Done
	default:
		return Unseen
	}
}

// Enter marks id in progress and reports whether it was already done.
func (s *Session) Enter(id graph.ID) (wasDone bool) {
	s.inProgress[id] = true
	return s.done[id]
}

// MarkDone records that id has been expanded.
func (s *Session) MarkDone(id graph.ID) { s.done[id] = true }

// Leave clears the in-progress mark of id.
func (s *Session) Leave(id graph.ID) { delete(s.inProgress, id) }

// Discover records a live behavior of typeName for the augmentation pass.
func (s *Session) Discover(typeName string, b *scene.Behavior, node *graph.Node) {
	for _, inst := range s.discovered[typeName] {
		if inst.Behavior == b {
			return
		}
	}
	s.discovered[typeName] = append(s.discovered[typeName], Instance{Behavior: b, Node: node})
}

// Instances returns the discovered live behaviors of typeName.
func (s *Session) Instances(typeName string) []Instance {
	return s.discovered[typeName]
}

// DiscoverAsset records a live data asset so source-inferred relationships
// to its type land on its node. Asset types are not augmented themselves.
func (s *Session) DiscoverAsset(a *scene.Asset, node *graph.Node) {
	for _, inst := range s.assets[a.Type] {
		if inst.Asset == a {
			return
		}
	}
	s.assets[a.Type] = append(s.assets[a.Type], Instance{Asset: a, Node: node})
}

// AssetInstances returns the discovered live assets of typeName.
func (s *Session) AssetInstances(typeName string) []Instance {
	return s.assets[typeName]
}

// DiscoveredTypes returns the discovered behavior type names, sorted.
func (s *Session) DiscoveredTypes() []string {
	names := make([]string, 0, len(s.discovered))
	for name := range s.discovered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InstancesOn returns the discovered behaviors of typeName owned by e.
func (s *Session) InstancesOn(typeName string, e *scene.Entity) []Instance {
	var out []Instance
	for _, inst := range s.discovered[typeName] {
		if inst.Behavior.Owner() == e {
			out = append(out, inst)
		}
	}
	return out
}
