package augment

import (
	"context"
	"fmt"
	"path/filepath"

	"refgraph/internal/csharp"
	"refgraph/internal/graph"
	"refgraph/internal/report"
	"refgraph/internal/resolve"
	"refgraph/internal/session"
)

// typeRun augments one behavior type.
type typeRun struct {
	*run
	name    string
	file    *csharp.File
	class   *csharp.Class
	path    string
	sources []session.Instance
}

func (t *typeRun) record(kind report.Kind, line int, detail string) report.Record {
	return report.Record{Type: t.name, Kind: kind, Path: t.path, Line: line, Detail: detail}
}

func (t *typeRun) at(line int) string {
	return fmt.Sprintf("%s:%d", filepath.Base(t.path), line)
}

// resolveIn resolves text in the scope of the named method. A miss is
// counted; the caller drops the relationship.
func (t *typeRun) resolveIn(ctx context.Context, text, caller string, line int) resolve.Result {
	res := t.chain.Resolve(ctx, resolve.Query{
		Text:  text,
		File:  t.path,
		Line:  line,
		Scope: t.class.ScopeFor(caller),
	})
	if !res.Resolved() {
		t.stats.Unresolved++
	}
	return res
}

func (t *typeRun) acquisitions(ctx context.Context) {
	for _, a := range t.class.Acquisitions {
		rec := t.record(report.KindAcquisition, a.Line, acquisitionDetail(a))
		res := t.resolveIn(ctx, a.TypeName, a.Caller, a.Line)
		if !res.Resolved() {
			t.rep.Add(rec)
			continue
		}
		rec.Target, rec.Strategy = res.Type.FullName(), res.Strategy

		annotation := fmt.Sprintf("%s %s", a.Method, t.at(a.Line))
		for _, src := range t.sources {
			owner := src.Behavior.Owner()
			nodes, virtual := t.targets(res.Type, src.Node.Depth+1, func(inst session.Instance) bool {
				return inst.Behavior != nil && within(inst.Behavior.Owner(), owner, a.Scope)
			})
			rec.Virtual = rec.Virtual || virtual
			rec.Edges += t.connect(src.Node, nodes, graph.CategoryDynamic, annotation)
		}
		t.rep.Add(rec)
	}
}

func acquisitionDetail(a csharp.Acquisition) string {
	if a.Method == "RequireComponent" {
		return fmt.Sprintf("[RequireComponent(typeof(%s))]", a.TypeName)
	}
	call := fmt.Sprintf("%s<%s>()", a.Method, a.TypeName)
	if a.Receiver != "" {
		call = a.Receiver + "." + call
	}
	return call
}

func (t *typeRun) publishers() {
	for _, e := range t.class.Events {
		detail := fmt.Sprintf("%s %s", e.Type, e.Name)
		if e.IsEvent {
			detail = "event " + detail
		}
		if e.Invoker != "" {
			detail += " invoked by " + e.Invoker
		}
		t.rep.Add(t.record(report.KindPublisher, e.Line, detail))
	}
}

func (t *typeRun) subscriptions(ctx context.Context) {
	for _, s := range t.class.Subscriptions {
		op := "+="
		if s.Unsubscribe {
			op = "-="
		}
		rec := t.record(report.KindSubscription, s.Line, fmt.Sprintf("%s %s %s", s.Target, op, s.Handler))
		rec.Pattern = s.Pattern.String()

		if s.OwnerPath == "" {
			rec.Self = true
			t.rep.Add(rec)
			continue
		}
		res := t.resolveIn(ctx, s.OwnerPath, s.Caller, s.Line)
		if !res.Resolved() {
			t.rep.Add(rec)
			continue
		}
		rec.Target, rec.Strategy = res.Type.FullName(), res.Strategy
		if rec.Target == t.class.FullName() {
			rec.Self = true
			t.rep.Add(rec)
			continue
		}

		annotation := fmt.Sprintf("%s %s %s", rec.Pattern, s.Event, t.at(s.Line))
		for _, src := range t.sources {
			nodes, virtual := t.targets(res.Type, src.Node.Depth+1, nil)
			rec.Virtual = rec.Virtual || virtual
			rec.Edges += t.connect(src.Node, nodes, graph.CategorySubscription, annotation)
		}
		t.rep.Add(rec)
	}
}

func (t *typeRun) invocations(ctx context.Context) {
	for _, inv := range t.class.Invocations {
		rec := t.record(report.KindInvocation, inv.Line, invocationDetail(inv))
		if inv.Indirect {
			rec.Pattern = "indirect"
		}

		if inv.Receiver == "" {
			rec.Self = true
			t.rep.Add(rec)
			continue
		}
		res := t.resolveIn(ctx, inv.Receiver, inv.Caller, inv.Line)
		if !res.Resolved() {
			t.rep.Add(rec)
			continue
		}
		rec.Target, rec.Strategy = res.Type.FullName(), res.Strategy
		if rec.Target == t.class.FullName() {
			rec.Self = true
			t.rep.Add(rec)
			continue
		}

		annotation := fmt.Sprintf("%s %s", inv.Member, t.at(inv.Line))
		if inv.Indirect {
			annotation = "indirect " + annotation
		}
		for _, src := range t.sources {
			nodes, virtual := t.targets(res.Type, src.Node.Depth+1, nil)
			rec.Virtual = rec.Virtual || virtual
			rec.Edges += t.connect(src.Node, nodes, graph.CategoryInvocation, annotation)
		}
		t.rep.Add(rec)
	}
}

func invocationDetail(inv csharp.Invocation) string {
	switch {
	case inv.Via == csharp.ViaPrefixedMethod:
		return inv.Target + "()"
	case inv.Conditional:
		return inv.Target + "?.Invoke()"
	default:
		return inv.Target + ".Invoke()"
	}
}
