// Package traverse walks a live object hierarchy into the session's graph
// store. The walk is an explicit worklist of enter and exit frames, so its
// depth is bounded by heap memory rather than the goroutine stack.
package traverse

import (
	"errors"
	"fmt"
	"log/slog"

	"refgraph/internal/graph"
	"refgraph/internal/scene"
	"refgraph/internal/session"
)

// Options controls which parts of the hierarchy become nodes.
type Options struct {
	// IgnoreTypes names behavior types that are never materialized or walked.
	IgnoreTypes []string
	// IgnoreTransform skips the behavior type named by TransformType.
	IgnoreTransform bool
	TransformType   string
	// BehaviorNodes materializes behaviors as nodes. When false, references
	// held by a behavior originate from its owning entity's node.
	BehaviorNodes bool
	// MaxDepth stops the walk below this depth. Zero means unbounded.
	MaxDepth int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{TransformType: "Transform", BehaviorNodes: true}
}

// Stats counts what a walk skipped.
type Stats struct {
	Visited     int
	Cycles      int
	FieldErrors int
	Refused     int
	Ignored     int
}

type frame struct {
	obj    scene.Object
	depth  int
	parent *graph.Node
	rel    graph.Relation

	exit bool
	id   graph.ID
}

// Engine walks objects into a session. It is single-threaded and must not
// be shared between passes.
type Engine struct {
	host    scene.Host
	sess    *session.Session
	opts    Options
	ignored map[string]bool
	log     *slog.Logger

	stack []frame
	stats Stats
}

// New creates an engine over host writing into sess.
func New(host scene.Host, sess *session.Session, opts Options) *Engine {
	if host == nil || sess == nil {
		panic("traverse: nil host or session")
	}
	ignored := make(map[string]bool, len(opts.IgnoreTypes)+1)
	for _, t := range opts.IgnoreTypes {
		ignored[t] = true
	}
	if opts.IgnoreTransform {
		name := opts.TransformType
		if name == "" {
			name = "Transform"
		}
		ignored[name] = true
	}
	return &Engine{
		host:    host,
		sess:    sess,
		opts:    opts,
		ignored: ignored,
		log:     sess.Logger.With(slog.String("component", "traverse")),
	}
}

// Stats returns the counters accumulated so far.
func (e *Engine) Stats() Stats { return e.stats }

// Run walks every root entity at depth zero.
func (e *Engine) Run(roots []*scene.Entity) {
	for _, r := range roots {
		e.TraverseEntity(r, 0, nil, graph.Relation{Category: graph.CategoryHierarchy})
	}
}

// TraverseEntity walks ent and everything reachable from it.
func (e *Engine) TraverseEntity(ent *scene.Entity, depth int, parent *graph.Node, rel graph.Relation) {
	if ent == nil {
		return
	}
	e.drain(frame{obj: ent, depth: depth, parent: parent, rel: rel})
}

// TraverseComponent walks b's fields and everything reachable from them.
func (e *Engine) TraverseComponent(b *scene.Behavior, depth int, parent *graph.Node) {
	if b == nil {
		return
	}
	e.drain(frame{obj: b, depth: depth, parent: parent, rel: graph.Relation{Category: graph.CategoryOwnership}})
}

// TraverseAsset walks a's serialized properties.
func (e *Engine) TraverseAsset(a *scene.Asset, depth int, parent *graph.Node) {
	if a == nil {
		return
	}
	e.drain(frame{obj: a, depth: depth, parent: parent, rel: graph.Relation{Category: graph.CategoryReference, Asset: true}})
}

func (e *Engine) drain(root frame) {
	e.stack = append(e.stack[:0], root)
	for len(e.stack) > 0 {
		f := e.stack[len(e.stack)-1]
		e.stack = e.stack[:len(e.stack)-1]
		if f.exit {
			e.sess.Leave(f.id)
			continue
		}
		if scene.IsNil(f.obj) {
			continue
		}
		switch obj := f.obj.(type) {
		case *scene.Entity:
			e.enterEntity(obj, f)
		case *scene.Behavior:
			e.enterBehavior(obj, f)
		case *scene.Asset:
			e.enterAsset(obj, f)
		}
	}
}

func (e *Engine) push(f frame) {
	if e.opts.MaxDepth > 0 && f.depth > e.opts.MaxDepth {
		return
	}
	e.stack = append(e.stack, f)
}

// begin runs the shared prologue of every enter frame. It returns the node
// and whether the object should be expanded. Whenever the object was marked
// in progress an exit frame is already scheduled.
func (e *Engine) begin(obj scene.Object, f frame) (*graph.Node, bool) {
	id := e.sess.Registry.IdentityOf(obj)

	if e.sess.State(id) == session.InProgress {
		e.stats.Cycles++
		e.closeCycle(obj, f)
		return nil, false
	}

	wasDone := e.sess.Enter(id)
	e.stack = append(e.stack, frame{exit: true, id: id})

	n, err := e.sess.Store.GetOrCreate(obj, f.depth, f.parent, f.rel)
	if err != nil {
		e.refused(obj, err)
		return nil, false
	}
	if wasDone {
		return n, false
	}
	e.sess.MarkDone(id)
	e.stats.Visited++
	return n, true
}

func (e *Engine) closeCycle(obj scene.Object, f frame) {
	if f.parent == nil {
		return
	}
	n, ok := e.sess.Store.NodeFor(obj)
	if !ok {
		return
	}
	rel := f.rel
	if rel.Category != graph.CategoryHierarchy && rel.Category != graph.CategoryOwnership {
		rel.Category = graph.CategoryCycle
	}
	e.sess.Store.Connect(f.parent, n, rel, f.depth)
}

func (e *Engine) refused(obj scene.Object, err error) {
	e.stats.Refused++
	if e.stats.Refused == 1 {
		e.log.Warn("node budget reached; no further nodes will be created",
			slog.String("object", obj.DisplayName()),
			slog.String("error", err.Error()))
	}
}

func (e *Engine) enterEntity(ent *scene.Entity, f frame) {
	if ent.Generated {
		e.log.Debug("skipping generated entity", slog.String("entity", ent.Name))
		return
	}
	n, expand := e.begin(ent, f)
	if !expand {
		return
	}

	children, err := e.children(ent)
	if err != nil {
		e.log.Warn("failed to list children", slog.String("entity", ent.Path()), slog.String("error", err.Error()))
	}
	for i := len(children) - 1; i >= 0; i-- {
		e.push(frame{obj: children[i], depth: f.depth + 1, parent: n, rel: graph.Relation{Category: graph.CategoryHierarchy}})
	}

	behaviors, err := e.behaviors(ent)
	if err != nil {
		e.log.Warn("failed to list behaviors", slog.String("entity", ent.Path()), slog.String("error", err.Error()))
	}
	for i := len(behaviors) - 1; i >= 0; i-- {
		e.push(frame{obj: behaviors[i], depth: f.depth, parent: n, rel: graph.Relation{Category: graph.CategoryOwnership}})
	}
}

func (e *Engine) enterBehavior(b *scene.Behavior, f frame) {
	if e.ignored[b.Type] {
		e.stats.Ignored++
		return
	}
	if !e.opts.BehaviorNodes {
		e.enterFoldedBehavior(b, f)
		return
	}
	n, expand := e.begin(b, f)
	if !expand {
		return
	}
	e.sess.Discover(b.Type, b, n)
	e.pushFields(b, n, f.depth+1)
}

// enterFoldedBehavior handles a behavior that has no node of its own. Reached
// from its entity it expands into the entity's node; reached through a
// reference it stands for its owner.
func (e *Engine) enterFoldedBehavior(b *scene.Behavior, f frame) {
	owner := b.Owner()
	if f.rel.Category != graph.CategoryOwnership {
		if owner == nil {
			e.log.Debug("dropping reference to detached behavior", slog.String("behavior", b.Type))
			return
		}
		e.push(frame{obj: owner, depth: f.depth, parent: f.parent, rel: f.rel})
		return
	}

	id := e.sess.Registry.IdentityOf(b)
	if e.sess.State(id) != session.Unseen {
		return
	}
	e.sess.Enter(id)
	e.stack = append(e.stack, frame{exit: true, id: id})
	e.sess.MarkDone(id)

	n := f.parent
	if n == nil && owner != nil {
		var err error
		n, err = e.sess.Store.GetOrCreate(owner, f.depth, nil, graph.Relation{})
		if err != nil {
			e.refused(owner, err)
			return
		}
	}
	if n == nil {
		return
	}
	e.stats.Visited++
	e.sess.Discover(b.Type, b, n)
	e.pushFields(b, n, f.depth+1)
}

func (e *Engine) pushFields(b *scene.Behavior, n *graph.Node, depth int) {
	fields, err := e.objectFields(b)
	if err != nil {
		e.stats.FieldErrors++
		e.log.Warn("failed to reflect behavior fields",
			slog.String("behavior", b.DisplayName()),
			slog.String("error", err.Error()))
		return
	}
	e.pushRefs(b.DisplayName(), fields, n, depth)
}

func (e *Engine) enterAsset(a *scene.Asset, f frame) {
	n, expand := e.begin(a, f)
	if !expand {
		return
	}
	e.sess.DiscoverAsset(a, n)
	props, err := e.assetProperties(a)
	if err != nil {
		e.stats.FieldErrors++
		e.log.Warn("failed to iterate asset properties",
			slog.String("asset", a.Name),
			slog.String("error", err.Error()))
		return
	}
	e.pushRefs(a.Name, props, n, f.depth+1)
}

func (e *Engine) pushRefs(owner string, fields []scene.Field, n *graph.Node, depth int) {
	for i := len(fields) - 1; i >= 0; i-- {
		fld := fields[i]
		if fld.Err != nil {
			e.stats.FieldErrors++
			e.log.Warn("skipping unreadable field",
				slog.String("owner", owner),
				slog.String("field", fld.Name),
				slog.String("error", fld.Err.Error()))
			continue
		}
		if scene.IsNil(fld.Target) {
			continue
		}
		e.push(frame{
			obj:    fld.Target,
			depth:  depth,
			parent: n,
			rel: graph.Relation{
				Category:   graph.CategoryReference,
				Asset:      fld.Target.Kind() == scene.KindAsset,
				Annotation: fld.Name,
			},
		})
	}
}

var errHostPanic = errors.New("host primitive panicked")

func guard(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", errHostPanic, r)
	}
}

func (e *Engine) children(ent *scene.Entity) (out []*scene.Entity, err error) {
	defer guard(&err)
	return e.host.Children(ent), nil
}

func (e *Engine) behaviors(ent *scene.Entity) (out []*scene.Behavior, err error) {
	defer guard(&err)
	return e.host.Behaviors(ent), nil
}

func (e *Engine) objectFields(b *scene.Behavior) (out []scene.Field, err error) {
	defer guard(&err)
	return e.host.ObjectFields(b)
}

func (e *Engine) assetProperties(a *scene.Asset) (out []scene.Field, err error) {
	defer guard(&err)
	return e.host.AssetProperties(a)
}
