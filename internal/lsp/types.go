package lsp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JSON-RPC 2.0

type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int   `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int       `json:"id"`
	Result  any       `json:"result"`
	Error   *RPCError `json:"error,omitempty"`
}

// inbound is any message read from the server: a response, a request or a
// notification.
type inbound struct {
	ID     *int            `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("lsp: rpc error %d: %s", e.Code, e.Message)
}

// Lifecycle

type InitializeParams struct {
	ProcessID    int                `json:"processId,omitempty"`
	RootURI      string             `json:"rootUri,omitempty"`
	Capabilities ClientCapabilities `json:"capabilities"`
}

type ClientCapabilities struct {
	TextDocument TextDocumentClientCapabilities `json:"textDocument"`
}

type TextDocumentClientCapabilities struct {
	Hover HoverClientCapabilities `json:"hover"`
}

type HoverClientCapabilities struct {
	ContentFormat []string `json:"contentFormat,omitempty"`
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
}

type ServerCapabilities struct {
	HoverProvider json.RawMessage `json:"hoverProvider,omitempty"`
}

// SupportsHover reports whether the server advertised hover support.
func (c ServerCapabilities) SupportsHover() bool {
	v := strings.TrimSpace(string(c.HoverProvider))
	return v != "" && v != "false" && v != "null"
}

// Documents

type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

type VersionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
}

type TextDocumentContentChangeEvent struct {
	Text string `json:"text"`
}

// Hover

type HoverParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// Hover contents may be a MarkupContent, a MarkedString or a list of
// MarkedStrings.
type Hover struct {
	Contents json.RawMessage `json:"contents"`
	Range    *Range          `json:"range,omitempty"`
}

type MarkupContent struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type markedString struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

// Text flattens the hover contents into plain markdown.
func (h *Hover) Text() string {
	if h == nil || len(h.Contents) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(h.Contents, &s) == nil {
		return s
	}
	var mc MarkupContent
	if json.Unmarshal(h.Contents, &mc) == nil && mc.Value != "" {
		return mc.Value
	}
	var list []json.RawMessage
	if json.Unmarshal(h.Contents, &list) == nil {
		var parts []string
		for _, item := range list {
			if json.Unmarshal(item, &s) == nil {
				parts = append(parts, s)
				continue
			}
			var ms markedString
			if json.Unmarshal(item, &ms) == nil {
				parts = append(parts, "```"+ms.Language+"\n"+ms.Value+"\n```")
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}
