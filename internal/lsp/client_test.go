package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refgraph/internal/resolve"
)

// fakeServer answers initialize and hover from a table keyed by position.
type fakeServer struct {
	conn   net.Conn
	hovers map[Position]string

	mu      sync.Mutex
	methods []string
}

func (f *fakeServer) serve(t *testing.T) {
	r := bufio.NewReader(f.conn)
	for {
		body, err := ReadMessage(r)
		if err != nil {
			return
		}
		var msg inbound
		require.NoError(t, json.Unmarshal(body, &msg))
		if msg.Method == "" {
			continue
		}
		f.mu.Lock()
		f.methods = append(f.methods, msg.Method)
		f.mu.Unlock()
		if msg.ID == nil {
			continue
		}

		var result any
		switch msg.Method {
		case "initialize":
			// Ask the client something first; it must answer and carry on.
			WriteMessage(f.conn, map[string]any{"jsonrpc": "2.0", "id": 900, "method": "workspace/configuration"})
			result = map[string]any{"capabilities": map[string]any{"hoverProvider": true}}
		case "textDocument/hover":
			var p HoverParams
			require.NoError(t, json.Unmarshal(msg.Params, &p))
			if v, ok := f.hovers[p.Position]; ok {
				result = map[string]any{"contents": map[string]string{"kind": "markdown", "value": v}}
			}
		case "fail":
			WriteMessage(f.conn, map[string]any{"jsonrpc": "2.0", "id": *msg.ID,
				"error": map[string]any{"code": -32601, "message": "no such method"}})
			continue
		}
		WriteMessage(f.conn, Response{JSONRPC: "2.0", ID: *msg.ID, Result: result})
	}
}

func (f *fakeServer) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...)
}

func connect(t *testing.T, hovers map[Position]string) (*Client, *fakeServer) {
	t.Helper()
	a, b := net.Pipe()
	srv := &fakeServer{conn: b, hovers: hovers}
	go srv.serve(t)
	c := NewClient(a, nil)
	t.Cleanup(func() {
		c.Close()
		b.Close()
	})
	return c, srv
}

func TestReadWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, map[string]int{"a": 1}))
	assert.Contains(t, buf.String(), "Content-Length: 7\r\n\r\n")

	body, err := ReadMessage(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(body))

	_, err = ReadMessage(bufio.NewReader(bytes.NewBufferString("X-Other: 1\r\n\r\n")))
	assert.ErrorIs(t, err, ErrMissingLength)
}

func TestInitializeAndHover(t *testing.T) {
	c, srv := connect(t, map[Position]string{
		{Line: 4, Character: 29}: "```csharp\n(field) Enemy Locator.field\n```",
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := c.Initialize(ctx, t.TempDir())
	require.NoError(t, err)
	assert.True(t, res.Capabilities.SupportsHover())
	assert.True(t, c.SupportsHover())

	dir := t.TempDir()
	path := filepath.Join(dir, "Player.cs")
	src := "public class Player : MonoBehaviour\n{\n    void OnEnable()\n    {\n        if (Locator.Instance.field) { }\n    }\n}\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	typ, ok := c.DeclaredType(ctx, resolve.Query{Text: "Locator.Instance.field", File: path, Line: 5})
	require.True(t, ok)
	assert.Equal(t, "Enemy", typ)

	_, ok = c.DeclaredType(ctx, resolve.Query{Text: "Locator.Instance", File: path, Line: 5})
	assert.False(t, ok, "no hover at that column")

	opens := 0
	for _, m := range srv.seen() {
		if m == "textDocument/didOpen" {
			opens++
		}
	}
	assert.Equal(t, 1, opens, "unchanged documents are opened once")
}

func TestCallErrors(t *testing.T) {
	c, _ := connect(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.Call(ctx, "fail", nil, nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)

	canceled, stop := context.WithCancel(context.Background())
	stop()
	assert.ErrorIs(t, c.Call(canceled, "textDocument/hover", HoverParams{}, nil), context.Canceled)

	require.NoError(t, c.Close())
	<-c.done
	assert.Error(t, c.Call(ctx, "initialize", InitializeParams{}, nil))
}

func TestColumn(t *testing.T) {
	tests := []struct {
		line, text string
		want       int
	}{
		{"        if (Locator.Instance.field) { }", "Locator.Instance.field", 29},
		{"    this.health?.bar += 1;", "this.health?.bar", 17},
		{"    target.OnHit -= Handle;", "target", 4},
		{"    // é x.y", "x.y", 11},
	}
	for _, tt := range tests {
		got, ok := Column(tt.line, tt.text)
		require.True(t, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
	_, ok := Column("nothing here", "Missing.Path")
	assert.False(t, ok)
}

func TestTypeFromHover(t *testing.T) {
	tests := []struct {
		md   string
		want string
		ok   bool
	}{
		{"```csharp\n(field) Enemy Locator.field\n```", "Enemy", true},
		{"```csharp\npublic static Game.Locator Locator.Instance { get; }\n```", "Game.Locator", true},
		{"(local variable) List<Enemy> enemies", "List<Enemy>", true},
		{"```csharp\nDictionary<string, Enemy> Registry.map\n```", "Dictionary<string, Enemy>", true},
		{"```csharp\nclass Game.Locator\n```", "Game.Locator", true},
		{"(parameter) Rigidbody? body", "Rigidbody", true},
		{"```csharp\nvoid Player.Die()\n```", "", false},
		{"(local variable) object thing", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := TypeFromHover(tt.md)
		assert.Equal(t, tt.ok, ok, tt.md)
		assert.Equal(t, tt.want, got, tt.md)
	}
}

func TestHoverText(t *testing.T) {
	plain := &Hover{Contents: json.RawMessage(`"Enemy x"`)}
	assert.Equal(t, "Enemy x", plain.Text())

	list := &Hover{Contents: json.RawMessage(`[{"language":"csharp","value":"Enemy x"},"docs"]`)}
	assert.Equal(t, "```csharp\nEnemy x\n```\ndocs", list.Text())

	var none *Hover
	assert.Empty(t, none.Text())
}
