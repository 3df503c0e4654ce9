package server

import (
	"context"
	"fmt"
	"strings"

	"refgraph/internal/analyzer"
	"refgraph/internal/graph"
	"refgraph/internal/report"
	"refgraph/internal/store"
)

// passView reads one pass, either the last in-memory result or a stored
// pass.
type passView interface {
	id() string
	node(ctx context.Context, id graph.ID) (*graph.Node, error)
	nodesByType(ctx context.Context, typeName string) ([]*graph.Node, error)
	edges(ctx context.Context, kind *graph.EdgeKind) ([]graph.Edge, error)
	references(ctx context.Context, typeName string) ([]store.Reference, error)
	report(ctx context.Context, typeName string) (*report.Report, error)
}

// view picks the pass addressed by id: empty means the current pass.
func (s *Server) view(ctx context.Context, id string) (passView, error) {
	if last, ok := s.analyzer.Last(); ok && (id == "" || id == last.Pass) {
		return memoryView{last}, nil
	}
	if s.store == nil {
		if id != "" {
			return nil, fmt.Errorf("pass %q not found and no store is configured", id)
		}
		return nil, ErrNoPass
	}
	if id == "" {
		latest, err := s.store.LatestPass(ctx)
		if err != nil {
			return nil, ErrNoPass
		}
		id = latest.ID
	} else if _, err := s.store.Pass(ctx, id); err != nil {
		return nil, fmt.Errorf("pass %q: %w", id, err)
	}
	return storeView{st: s.store, pass: id}, nil
}

type memoryView struct{ res *analyzer.Result }

func (v memoryView) id() string { return v.res.Pass }

func (v memoryView) node(_ context.Context, id graph.ID) (*graph.Node, error) {
	n, ok := v.res.Node(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return n, nil
}

func (v memoryView) nodesByType(_ context.Context, typeName string) ([]*graph.Node, error) {
	var out []*graph.Node
	for _, n := range v.res.Nodes {
		if typeMatches(n.TypeName, typeName) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (v memoryView) edges(_ context.Context, kind *graph.EdgeKind) ([]graph.Edge, error) {
	if kind == nil {
		return v.res.Edges, nil
	}
	var out []graph.Edge
	for _, e := range v.res.Edges {
		if e.Kind == *kind {
			out = append(out, e)
		}
	}
	return out, nil
}

func (v memoryView) references(_ context.Context, typeName string) ([]store.Reference, error) {
	var out []store.Reference
	for _, e := range v.res.Edges {
		to, ok := v.res.Node(e.To)
		if !ok || !typeMatches(to.TypeName, typeName) {
			continue
		}
		from, _ := v.res.Node(e.From)
		out = append(out, store.Reference{Edge: e, From: from, To: to})
	}
	return out, nil
}

func (v memoryView) report(_ context.Context, typeName string) (*report.Report, error) {
	if typeName == "" {
		return v.res.Report, nil
	}
	rep := report.New(v.res.Pass)
	for _, rec := range v.res.Report.ByType(typeName) {
		rep.Add(rec)
	}
	for _, sk := range v.res.Report.Skipped {
		if sk.Type == typeName {
			rep.Skip(sk.Type, sk.Reason)
		}
	}
	return rep, nil
}

// typeMatches compares a full type name against a full or simple name.
func typeMatches(full, name string) bool {
	return full == name || strings.HasSuffix(full, "."+name)
}

type storeView struct {
	st   *store.Store
	pass string
}

func (v storeView) id() string { return v.pass }

func (v storeView) node(ctx context.Context, id graph.ID) (*graph.Node, error) {
	return v.st.Node(ctx, v.pass, id)
}

func (v storeView) nodesByType(ctx context.Context, typeName string) ([]*graph.Node, error) {
	return v.st.NodesByType(ctx, v.pass, typeName)
}

func (v storeView) edges(ctx context.Context, kind *graph.EdgeKind) ([]graph.Edge, error) {
	return v.st.Edges(ctx, v.pass, kind)
}

func (v storeView) references(ctx context.Context, typeName string) ([]store.Reference, error) {
	return v.st.FindReferences(ctx, v.pass, typeName)
}

func (v storeView) report(ctx context.Context, typeName string) (*report.Report, error) {
	return v.st.Report(ctx, v.pass, typeName)
}
