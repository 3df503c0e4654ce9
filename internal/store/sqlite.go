// Package store persists analysis passes in SQLite so graphs and reports can
// be queried after the process that produced them has exited.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"refgraph/internal/graph"
	"refgraph/internal/report"
)

// ErrNotFound is returned when a requested pass does not exist.
var ErrNotFound = errors.New("store: not found")

// Store manages the SQLite connection and schema.
type Store struct {
	db *sql.DB
}

// Pass is everything one analysis pass produced.
type Pass struct {
	ID        string
	CreatedAt time.Time
	Exhausted bool
	Nodes     []*graph.Node
	Edges     []graph.Edge
	Report    *report.Report
}

// PassInfo summarizes a stored pass.
type PassInfo struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Nodes      int       `json:"nodes"`
	Edges      int       `json:"edges"`
	Unresolved int       `json:"unresolved"`
	Exhausted  bool      `json:"exhausted"`
}

// Reference is an edge together with both of its endpoints.
type Reference struct {
	Edge graph.Edge  `json:"edge"`
	From *graph.Node `json:"from"`
	To   *graph.Node `json:"to"`
}

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// Pragmas are per connection and an in-memory database is private to
	// its connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS passes (
		pass_id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		exhausted INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS nodes (
		pass_id TEXT NOT NULL REFERENCES passes(pass_id) ON DELETE CASCADE,
		node_id INTEGER NOT NULL,
		label TEXT NOT NULL,
		kind TEXT NOT NULL,
		type_name TEXT NOT NULL,
		depth INTEGER NOT NULL,
		PRIMARY KEY (pass_id, node_id)
	);

	CREATE TABLE IF NOT EXISTS edges (
		pass_id TEXT NOT NULL REFERENCES passes(pass_id) ON DELETE CASCADE,
		from_id INTEGER NOT NULL,
		to_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		depth INTEGER NOT NULL,
		color TEXT NOT NULL,
		width REAL NOT NULL,
		annotation TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (pass_id, from_id, to_id, kind)
	);

	CREATE TABLE IF NOT EXISTS records (
		pass_id TEXT NOT NULL REFERENCES passes(pass_id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		type_name TEXT NOT NULL,
		kind TEXT NOT NULL,
		path TEXT NOT NULL,
		line INTEGER NOT NULL,
		detail TEXT NOT NULL,
		target TEXT NOT NULL DEFAULT '',
		strategy TEXT NOT NULL DEFAULT '',
		pattern TEXT NOT NULL DEFAULT '',
		self INTEGER NOT NULL DEFAULT 0,
		virtual INTEGER NOT NULL DEFAULT 0,
		edge_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (pass_id, seq)
	);

	CREATE TABLE IF NOT EXISTS skipped (
		pass_id TEXT NOT NULL REFERENCES passes(pass_id) ON DELETE CASCADE,
		type_name TEXT NOT NULL,
		reason TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_passes_created ON passes(created_at);
	CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(pass_id, type_name);
	CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(pass_id, to_id);
	CREATE INDEX IF NOT EXISTS idx_records_type ON records(pass_id, type_name);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// SavePass writes a pass in a single transaction. Saving an existing pass
// id replaces it.
func (s *Store) SavePass(ctx context.Context, p *Pass) error {
	if p == nil || p.ID == "" {
		return errors.New("store: pass without id")
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM passes WHERE pass_id = ?`, p.ID); err != nil {
		return fmt.Errorf("failed to replace pass: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO passes (pass_id, created_at, exhausted) VALUES (?, ?, ?)`,
		p.ID, created.UTC(), p.Exhausted); err != nil {
		return fmt.Errorf("failed to insert pass: %w", err)
	}

	if err := insertNodes(ctx, tx, p.ID, p.Nodes); err != nil {
		return err
	}
	if err := insertEdges(ctx, tx, p.ID, p.Edges); err != nil {
		return err
	}
	if p.Report != nil {
		if err := insertReport(ctx, tx, p.ID, p.Report); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pass: %w", err)
	}
	return nil
}

func insertNodes(ctx context.Context, tx *sql.Tx, pass string, nodes []*graph.Node) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO nodes (pass_id, node_id, label, kind, type_name, depth) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer stmt.Close()

	for _, n := range nodes {
		if _, err := stmt.ExecContext(ctx, pass, int64(n.ID), n.Label, n.Kind.String(), n.TypeName, n.Depth); err != nil {
			return fmt.Errorf("failed to insert node %d: %w", n.ID, err)
		}
	}
	return nil
}

func insertEdges(ctx context.Context, tx *sql.Tx, pass string, edges []graph.Edge) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO edges (pass_id, from_id, to_id, kind, depth, color, width, annotation)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, pass, int64(e.From), int64(e.To), e.Kind.String(),
			e.Depth, e.Color.Hex(), e.Width, e.Annotation); err != nil {
			return fmt.Errorf("failed to insert edge %d->%d: %w", e.From, e.To, err)
		}
	}
	return nil
}

func insertReport(ctx context.Context, tx *sql.Tx, pass string, rep *report.Report) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (pass_id, seq, type_name, kind, path, line, detail, target, strategy, pattern, self, virtual, edge_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rep.Records {
		if _, err := stmt.ExecContext(ctx, pass, i, r.Type, string(r.Kind), r.Path, r.Line, r.Detail,
			r.Target, r.Strategy, r.Pattern, r.Self, r.Virtual, r.Edges); err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}
	for _, sk := range rep.Skipped {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO skipped (pass_id, type_name, reason) VALUES (?, ?, ?)`,
			pass, sk.Type, sk.Reason); err != nil {
			return fmt.Errorf("failed to insert skipped type: %w", err)
		}
	}
	return nil
}

const passInfoQuery = `
	SELECT p.pass_id, p.created_at, p.exhausted,
		(SELECT COUNT(*) FROM nodes n WHERE n.pass_id = p.pass_id),
		(SELECT COUNT(*) FROM edges e WHERE e.pass_id = p.pass_id),
		(SELECT COUNT(*) FROM records r WHERE r.pass_id = p.pass_id AND r.target = '' AND r.self = 0 AND r.kind != 'publisher')
	FROM passes p`

func scanPassInfo(row interface{ Scan(...any) error }) (PassInfo, error) {
	var info PassInfo
	err := row.Scan(&info.ID, &info.CreatedAt, &info.Exhausted, &info.Nodes, &info.Edges, &info.Unresolved)
	return info, err
}

// Passes lists stored passes, newest first.
func (s *Store) Passes(ctx context.Context) ([]PassInfo, error) {
	rows, err := s.db.QueryContext(ctx, passInfoQuery+` ORDER BY p.created_at DESC, p.rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query passes: %w", err)
	}
	defer rows.Close()

	var out []PassInfo
	for rows.Next() {
		info, err := scanPassInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pass: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// LatestPass returns the most recently created pass.
func (s *Store) LatestPass(ctx context.Context) (PassInfo, error) {
	info, err := scanPassInfo(s.db.QueryRowContext(ctx,
		passInfoQuery+` ORDER BY p.created_at DESC, p.rowid DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return PassInfo{}, ErrNotFound
	}
	if err != nil {
		return PassInfo{}, fmt.Errorf("failed to query latest pass: %w", err)
	}
	return info, nil
}

// Pass returns the summary of the pass with the given id.
func (s *Store) Pass(ctx context.Context, id string) (PassInfo, error) {
	info, err := scanPassInfo(s.db.QueryRowContext(ctx, passInfoQuery+` WHERE p.pass_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return PassInfo{}, ErrNotFound
	}
	if err != nil {
		return PassInfo{}, fmt.Errorf("failed to query pass: %w", err)
	}
	return info, nil
}

const nodeColumns = `node_id, label, kind, type_name, depth`

func scanNode(row interface{ Scan(...any) error }) (*graph.Node, error) {
	var (
		n    graph.Node
		id   int64
		kind string
	)
	if err := row.Scan(&id, &n.Label, &kind, &n.TypeName, &n.Depth); err != nil {
		return nil, err
	}
	k, ok := graph.ParseNodeKind(kind)
	if !ok {
		return nil, fmt.Errorf("unknown node kind %q", kind)
	}
	n.ID, n.Kind = graph.ID(id), k
	return &n, nil
}

// Nodes returns the nodes of a pass in id order.
func (s *Store) Nodes(ctx context.Context, pass string) ([]*graph.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE pass_id = ? ORDER BY node_id`, pass)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var out []*graph.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Node returns one node of a pass.
func (s *Store) Node(ctx context.Context, pass string, id graph.ID) (*graph.Node, error) {
	n, err := scanNode(s.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE pass_id = ? AND node_id = ?`, pass, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query node: %w", err)
	}
	return n, nil
}

// NodesByType returns the nodes of a pass whose type is typeName, matched
// against the full name or the trailing simple name.
func (s *Store) NodesByType(ctx context.Context, pass, typeName string) ([]*graph.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes
		 WHERE pass_id = ? AND (type_name = ? OR type_name LIKE ? ESCAPE '\')
		 ORDER BY node_id`, pass, typeName, "%."+escapeLike(typeName))
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes by type: %w", err)
	}
	defer rows.Close()

	var out []*graph.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanEdge(row interface{ Scan(...any) error }) (graph.Edge, error) {
	var (
		e           graph.Edge
		from, to    int64
		kind, color string
	)
	if err := row.Scan(&from, &to, &kind, &e.Depth, &color, &e.Width, &e.Annotation); err != nil {
		return graph.Edge{}, err
	}
	k, ok := graph.ParseEdgeKind(kind)
	if !ok {
		return graph.Edge{}, fmt.Errorf("unknown edge kind %q", kind)
	}
	c, err := graph.ParseColor(color)
	if err != nil {
		return graph.Edge{}, err
	}
	e.From, e.To, e.Kind, e.Color = graph.ID(from), graph.ID(to), k, c
	return e, nil
}

// Edges returns the edges of a pass, optionally only those of kind.
func (s *Store) Edges(ctx context.Context, pass string, kind *graph.EdgeKind) ([]graph.Edge, error) {
	query := `SELECT from_id, to_id, kind, depth, color, width, annotation FROM edges WHERE pass_id = ?`
	args := []any{pass}
	if kind != nil {
		query += ` AND kind = ?`
		args = append(args, kind.String())
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var out []graph.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FindReferences returns every edge of a pass that points at a node of
// typeName, with both endpoints.
func (s *Store) FindReferences(ctx context.Context, pass, typeName string) ([]Reference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.from_id, e.to_id, e.kind, e.depth, e.color, e.width, e.annotation,
			f.node_id, f.label, f.kind, f.type_name, f.depth,
			t.node_id, t.label, t.kind, t.type_name, t.depth
		FROM edges e
		JOIN nodes t ON t.pass_id = e.pass_id AND t.node_id = e.to_id
		JOIN nodes f ON f.pass_id = e.pass_id AND f.node_id = e.from_id
		WHERE e.pass_id = ? AND (t.type_name = ? OR t.type_name LIKE ? ESCAPE '\')
		ORDER BY e.rowid`, pass, typeName, "%."+escapeLike(typeName))
	if err != nil {
		return nil, fmt.Errorf("failed to query references: %w", err)
	}
	defer rows.Close()

	var out []Reference
	for rows.Next() {
		var (
			from, to, fid, tid        int64
			kind, color, fkind, tkind string
			ref                       Reference
			f, t                      graph.Node
		)
		if err := rows.Scan(&from, &to, &kind, &ref.Edge.Depth, &color, &ref.Edge.Width, &ref.Edge.Annotation,
			&fid, &f.Label, &fkind, &f.TypeName, &f.Depth,
			&tid, &t.Label, &tkind, &t.TypeName, &t.Depth); err != nil {
			return nil, fmt.Errorf("failed to scan reference: %w", err)
		}
		ek, ok := graph.ParseEdgeKind(kind)
		if !ok {
			return nil, fmt.Errorf("unknown edge kind %q", kind)
		}
		c, err := graph.ParseColor(color)
		if err != nil {
			return nil, err
		}
		ref.Edge.From, ref.Edge.To, ref.Edge.Kind, ref.Edge.Color = graph.ID(from), graph.ID(to), ek, c
		f.ID, t.ID = graph.ID(fid), graph.ID(tid)
		f.Kind, _ = graph.ParseNodeKind(fkind)
		t.Kind, _ = graph.ParseNodeKind(tkind)
		ref.From, ref.To = &f, &t
		out = append(out, ref)
	}
	return out, rows.Err()
}

// Report rebuilds the augmentation report of a pass. A non-empty typeName
// restricts the records to that behavior type.
func (s *Store) Report(ctx context.Context, pass, typeName string) (*report.Report, error) {
	query := `SELECT type_name, kind, path, line, detail, target, strategy, pattern, self, virtual, edge_count
		FROM records WHERE pass_id = ?`
	args := []any{pass}
	if typeName != "" {
		query += ` AND type_name = ?`
		args = append(args, typeName)
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	rep := report.New(pass)
	for rows.Next() {
		var (
			r    report.Record
			kind string
		)
		if err := rows.Scan(&r.Type, &kind, &r.Path, &r.Line, &r.Detail, &r.Target, &r.Strategy,
			&r.Pattern, &r.Self, &r.Virtual, &r.Edges); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Kind = report.Kind(kind)
		rep.Add(r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	skipQuery := `SELECT type_name, reason FROM skipped WHERE pass_id = ?`
	skipArgs := []any{pass}
	if typeName != "" {
		skipQuery += ` AND type_name = ?`
		skipArgs = append(skipArgs, typeName)
	}
	srows, err := s.db.QueryContext(ctx, skipQuery+` ORDER BY rowid`, skipArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to query skipped types: %w", err)
	}
	defer srows.Close()
	for srows.Next() {
		var name, reason string
		if err := srows.Scan(&name, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan skipped type: %w", err)
		}
		rep.Skip(name, reason)
	}
	return rep, srows.Err()
}

// Prune deletes all but the keep newest passes and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM passes WHERE pass_id NOT IN (
			SELECT pass_id FROM passes ORDER BY created_at DESC, rowid DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune passes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
