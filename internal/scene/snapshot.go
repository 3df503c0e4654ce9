package scene

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"refgraph/internal/typesys"
)

// Snapshot is an exported hierarchy: root entities, shared assets and the
// type declarations the exporting host knew about.
type Snapshot struct {
	Scene *Scene
	Types []*typesys.Type
	// Objects maps snapshot ids to the objects built from them.
	Objects map[string]Object
}

type snapshotFile struct {
	Types    []typeSpec   `yaml:"types"`
	Assets   []assetSpec  `yaml:"assets"`
	Entities []entitySpec `yaml:"entities"`
}

type typeSpec struct {
	Name      string           `yaml:"name"`
	Namespace string           `yaml:"namespace"`
	Base      string           `yaml:"base"`
	Kind      string           `yaml:"kind"`
	Members   []typesys.Member `yaml:"members"`
}

type assetSpec struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name"`
	Type       string            `yaml:"type"`
	Properties map[string]string `yaml:"properties"`
}

type entitySpec struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Behaviors []behaviorSpec `yaml:"behaviors"`
	Children  []entitySpec   `yaml:"children"`
}

type behaviorSpec struct {
	ID     string            `yaml:"id"`
	Type   string            `yaml:"type"`
	Fields map[string]string `yaml:"fields"`
}

// LoadSnapshotFile reads a YAML snapshot from path.
func LoadSnapshotFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	return LoadSnapshot(f)
}

// LoadSnapshot decodes a YAML snapshot. Field and property values name
// object ids; ids that do not exist become fields carrying
// ErrDanglingReference rather than failing the load.
func LoadSnapshot(r io.Reader) (*Snapshot, error) {
	var doc snapshotFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	snap := &Snapshot{
		Scene:   &Scene{},
		Objects: make(map[string]Object),
	}

	for _, ts := range doc.Types {
		if ts.Name == "" {
			return nil, fmt.Errorf("snapshot type without a name")
		}
		t := &typesys.Type{
			Name:      ts.Name,
			Namespace: ts.Namespace,
			Base:      ts.Base,
			Kind:      typesys.ParseKind(ts.Kind),
		}
		for _, m := range ts.Members {
			if m.Event {
				m.Kind = typesys.MemberEvent
			}
			t.Members = append(t.Members, m)
		}
		snap.Types = append(snap.Types, t)
	}

	assetProps := make(map[*Asset]map[string]string)
	for _, as := range doc.Assets {
		a := NewAsset(as.Name, as.Type)
		if err := snap.register(as.ID, a); err != nil {
			return nil, err
		}
		snap.Scene.Assets = append(snap.Scene.Assets, a)
		assetProps[a] = as.Properties
	}

	behaviorFields := make(map[*Behavior]map[string]string)
	var build func(spec entitySpec, parent *Entity) (*Entity, error)
	build = func(spec entitySpec, parent *Entity) (*Entity, error) {
		e := NewEntity(spec.Name)
		if parent != nil {
			parent.AddChild(e)
		}
		if err := snap.register(spec.ID, e); err != nil {
			return nil, err
		}
		for _, bs := range spec.Behaviors {
			b := e.AddBehavior(bs.Type, nil)
			if err := snap.register(bs.ID, b); err != nil {
				return nil, err
			}
			behaviorFields[b] = bs.Fields
		}
		for _, cs := range spec.Children {
			if _, err := build(cs, e); err != nil {
				return nil, err
			}
		}
		return e, nil
	}
	for _, es := range doc.Entities {
		root, err := build(es, nil)
		if err != nil {
			return nil, err
		}
		snap.Scene.Roots = append(snap.Scene.Roots, root)
	}

	for a, props := range assetProps {
		a.Properties = snap.link(props)
	}
	for b, fields := range behaviorFields {
		b.Fields = snap.link(fields)
	}
	return snap, nil
}

func (s *Snapshot) register(id string, obj Object) error {
	if id == "" {
		return nil
	}
	if _, dup := s.Objects[id]; dup {
		return fmt.Errorf("duplicate snapshot id %q", id)
	}
	s.Objects[id] = obj
	return nil
}

// link turns an id map into fields ordered by field name.
func (s *Snapshot) link(refs map[string]string) []Field {
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(names))
	for _, name := range names {
		id := refs[name]
		if obj, ok := s.Objects[id]; ok {
			fields = append(fields, Field{Name: name, Target: obj})
			continue
		}
		fields = append(fields, Field{Name: name, Err: fmt.Errorf("%w: %s -> %q", ErrDanglingReference, name, id)})
	}
	return fields
}
