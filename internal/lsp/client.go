// Package lsp is a minimal language server client used as a declared-type
// oracle: it asks a C# language server for the hover text at a member
// access and reads the declared type out of it.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"unicode/utf16"

	"refgraph/internal/resolve"
	"refgraph/internal/typesys"
	"refgraph/util"
)

// ErrClosed is returned for calls made after the connection ended.
var ErrClosed = errors.New("lsp: connection closed")

// Client speaks JSON-RPC to one language server. It is safe for concurrent
// use.
type Client struct {
	r      *bufio.Reader
	w      io.Writer
	closer io.Closer
	cmd    *exec.Cmd
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int
	pending map[int]chan inbound
	docs    map[string]document
	caps    ServerCapabilities
	err     error
	done    chan struct{}
}

type document struct {
	version int
	text    string
}

// NewClient starts a client over an established connection. The read loop
// runs until rw is closed.
func NewClient(rw io.ReadWriteCloser, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		r:       bufio.NewReader(rw),
		w:       rw,
		closer:  rw,
		logger:  logger.With(slog.String("component", "lsp")),
		pending: make(map[int]chan inbound),
		docs:    make(map[string]document),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

type pipeConn struct {
	io.ReadCloser
	io.WriteCloser
}

func (p pipeConn) Close() error {
	werr := p.WriteCloser.Close()
	rerr := p.ReadCloser.Close()
	return errors.Join(werr, rerr)
}

// Start launches the language server command with its stdio as the
// connection.
func Start(ctx context.Context, command string, args []string, logger *slog.Logger) (*Client, error) {
	path, err := FindServer(command)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = io.Discard
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open server stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open server stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", command, err)
	}
	c := NewClient(pipeConn{ReadCloser: stdout, WriteCloser: stdin}, logger)
	c.cmd = cmd
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		body, err := ReadMessage(c.r)
		if err != nil {
			c.fail(err)
			return
		}
		var msg inbound
		if err := json.Unmarshal(body, &msg); err != nil {
			c.logger.Debug("dropping malformed message", slog.Any("error", err))
			continue
		}
		switch {
		case msg.ID != nil && msg.Method == "":
			c.mu.Lock()
			ch, ok := c.pending[*msg.ID]
			delete(c.pending, *msg.ID)
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
		case msg.ID != nil:
			// Server-to-client requests such as workspace/configuration get
			// an empty answer. Replying must not block reading.
			go c.reply(*msg.ID, msg.Method)
		default:
			c.logger.Debug("notification", slog.String("method", msg.Method))
		}
	}
}

func (c *Client) reply(id int, method string) {
	if err := c.write(Response{JSONRPC: "2.0", ID: id}); err != nil {
		c.logger.Debug("failed to answer server request", slog.String("method", method), slog.Any("error", err))
	}
}

func (c *Client) fail(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		err = ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) write(msg any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteMessage(c.w, msg)
}

// Call sends a request and decodes the response result into result, which
// may be nil.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.nextID++
	id := c.nextID
	ch := make(chan inbound, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(Request{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		c.forget(id)
		return fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case msg, ok := <-ch:
		if !ok {
			c.mu.Lock()
			err := c.err
			c.mu.Unlock()
			return err
		}
		if msg.Error != nil {
			return msg.Error
		}
		if result == nil || len(msg.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
		return nil
	}
}

func (c *Client) forget(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Notify sends a notification.
func (c *Client) Notify(method string, params any) error {
	return c.write(Request{JSONRPC: "2.0", Method: method, Params: params})
}

// Initialize performs the initialize handshake for the workspace at root.
func (c *Client) Initialize(ctx context.Context, root string) (*InitializeResult, error) {
	params := InitializeParams{
		ProcessID: os.Getpid(),
		RootURI:   util.PathToURI(root),
		Capabilities: ClientCapabilities{TextDocument: TextDocumentClientCapabilities{
			Hover: HoverClientCapabilities{ContentFormat: []string{"markdown", "plaintext"}},
		}},
	}
	var res InitializeResult
	if err := c.Call(ctx, "initialize", params, &res); err != nil {
		return nil, fmt.Errorf("initialize failed: %w", err)
	}
	if err := c.Notify("initialized", struct{}{}); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.caps = res.Capabilities
	c.mu.Unlock()
	return &res, nil
}

// Sync opens path with text, or sends the new text when it changed since
// the last sync.
func (c *Client) Sync(path, text string) error {
	uri := util.PathToURI(path)
	c.mu.Lock()
	doc, open := c.docs[uri]
	if open && doc.text == text {
		c.mu.Unlock()
		return nil
	}
	doc.version++
	doc.text = text
	c.docs[uri] = doc
	c.mu.Unlock()

	if !open {
		return c.Notify("textDocument/didOpen", DidOpenTextDocumentParams{TextDocument: TextDocumentItem{
			URI: uri, LanguageID: "csharp", Version: doc.version, Text: text,
		}})
	}
	return c.Notify("textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument:   VersionedTextDocumentIdentifier{URI: uri, Version: doc.version},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: text}},
	})
}

// Hover requests the hover at a zero-based position.
func (c *Client) Hover(ctx context.Context, path string, pos Position) (*Hover, error) {
	var h *Hover
	err := c.Call(ctx, "textDocument/hover", HoverParams{
		TextDocument: TextDocumentIdentifier{URI: util.PathToURI(path)},
		Position:     pos,
	}, &h)
	return h, err
}

// DeclaredType asks the server for the type of the last segment of q.Text
// at q.File:q.Line. Any failure is a miss.
func (c *Client) DeclaredType(ctx context.Context, q resolve.Query) (string, bool) {
	if q.File == "" || q.Line <= 0 {
		return "", false
	}
	data, err := os.ReadFile(q.File)
	if err != nil {
		return "", false
	}
	text := string(data)
	lines := strings.Split(text, "\n")
	if q.Line > len(lines) {
		return "", false
	}
	col, ok := Column(lines[q.Line-1], q.Text)
	if !ok {
		return "", false
	}
	if err := c.Sync(q.File, text); err != nil {
		c.logger.Debug("sync failed", slog.String("path", q.File), slog.Any("error", err))
		return "", false
	}
	h, err := c.Hover(ctx, q.File, Position{Line: q.Line - 1, Character: col})
	if err != nil {
		c.logger.Debug("hover failed", slog.String("path", q.File), slog.Int("line", q.Line), slog.Any("error", err))
		return "", false
	}
	return TypeFromHover(h.Text())
}

// Column returns the UTF-16 column of the last segment of the access path
// text within line.
func Column(line, text string) (int, bool) {
	segs := typesys.SplitPath(text)
	if len(segs) == 0 {
		return 0, false
	}
	last := typesys.SegmentName(segs[len(segs)-1])
	if last == "" {
		return 0, false
	}
	idx := -1
	if i := strings.Index(line, strings.TrimSpace(text)); i >= 0 {
		idx = i + strings.LastIndex(strings.TrimSpace(text), last)
	} else if i := strings.LastIndex(line, last); i >= 0 {
		idx = i
	}
	if idx < 0 {
		return 0, false
	}
	return len(utf16.Encode([]rune(line[:idx]))), true
}

var hoverModifiers = map[string]bool{
	"public": true, "private": true, "protected": true, "internal": true,
	"static": true, "readonly": true, "const": true, "event": true,
	"abstract": true, "virtual": true, "override": true, "sealed": true,
	"new": true, "ref": true, "partial": true, "unsafe": true,
}

var typeKeywords = map[string]bool{
	"class": true, "struct": true, "interface": true, "enum": true, "record": true, "delegate": true,
}

// TypeFromHover extracts the declared type from C# hover markdown such as
// "```csharp\n(field) Enemy Locator.field\n```".
func TypeFromHover(md string) (string, bool) {
	var sig string
	for _, l := range strings.Split(md, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "```") {
			continue
		}
		sig = l
		break
	}
	if strings.HasPrefix(sig, "(") {
		if i := strings.IndexByte(sig, ')'); i >= 0 {
			sig = strings.TrimSpace(sig[i+1:])
		}
	}

	tokens := splitTypeTokens(sig)
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case hoverModifiers[tok]:
			continue
		case typeKeywords[tok]:
			if i+1 < len(tokens) && tok != "delegate" {
				return tokens[i+1], true
			}
			return "", false
		}
		tok = strings.TrimSuffix(tok, "?")
		if placeholderType(tok) {
			return "", false
		}
		return tok, true
	}
	return "", false
}

func placeholderType(tok string) bool {
	return tok == "" || tok == "void" || typesys.IsPlaceholderName(tok)
}

// splitTypeTokens splits on spaces outside <...> so "Dictionary<string, A> x"
// yields ["Dictionary<string, A>", "x"].
func splitTypeTokens(s string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(', '[':
			depth++
		case '>', ')', ']':
			if depth > 0 {
				depth--
			}
		case ' ', '\t':
			if depth == 0 {
				if start < i {
					out = append(out, s[start:i])
				}
				start = i + 1
			}
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// SupportsHover reports whether the server advertised hover during
// Initialize.
func (c *Client) SupportsHover() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps.SupportsHover()
}

// Shutdown asks the server to exit and closes the connection.
func (c *Client) Shutdown(ctx context.Context) error {
	err := c.Call(ctx, "shutdown", nil, nil)
	if nerr := c.Notify("exit", nil); err == nil && nerr != nil && !errors.Is(nerr, os.ErrClosed) {
		err = nerr
	}
	return errors.Join(err, c.Close())
}

// Close closes the connection and waits for the server process, if any.
func (c *Client) Close() error {
	err := c.closer.Close()
	if c.cmd != nil {
		c.cmd.Wait()
	}
	return err
}

var _ resolve.TypeChecker = (*Client)(nil)
