// Package report collects the relationships found by source augmentation
// and renders them, grouped per behavior type, with file and line.
package report

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"
)

// Kind classifies a record.
type Kind string

const (
	KindAcquisition  Kind = "acquisition"
	KindPublisher    Kind = "publisher"
	KindSubscription Kind = "subscription"
	KindInvocation   Kind = "invocation"
)

// Record is one relationship found in a behavior's source.
type Record struct {
	Type   string `json:"type"`
	Kind   Kind   `json:"kind"`
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Detail string `json:"detail"`
	// Target is the resolved related type, empty when unresolved.
	Target   string `json:"target,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Pattern  string `json:"pattern,omitempty"`
	// Self marks a relationship whose owner is the declaring type itself.
	// It is reported but not added to the graph.
	Self    bool `json:"self,omitempty"`
	Virtual bool `json:"virtual,omitempty"`
	Edges   int  `json:"edges"`
}

// Resolved reports whether the related type was found.
func (r Record) Resolved() bool { return r.Target != "" }

// Skip is a behavior type whose source could not be used.
type Skip struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Report is the augmentation report of one pass.
type Report struct {
	Pass    string   `json:"pass"`
	Records []Record `json:"records"`
	Skipped []Skip   `json:"skipped,omitempty"`
}

// New creates an empty report for a pass.
func New(pass string) *Report {
	return &Report{Pass: pass}
}

// Add appends a record.
func (r *Report) Add(rec Record) { r.Records = append(r.Records, rec) }

// Skip records that a type was not augmented.
func (r *Report) Skip(typeName, reason string) {
	r.Skipped = append(r.Skipped, Skip{Type: typeName, Reason: reason})
}

// Types returns the behavior types with records, sorted.
func (r *Report) Types() []string {
	seen := make(map[string]bool)
	var out []string
	for _, rec := range r.Records {
		if !seen[rec.Type] {
			seen[rec.Type] = true
			out = append(out, rec.Type)
		}
	}
	sort.Strings(out)
	return out
}

// ByType returns the records of one type ordered by file and line.
func (r *Report) ByType(typeName string) []Record {
	var out []Record
	for _, rec := range r.Records {
		if rec.Type == typeName {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// Count returns the number of records of kind k.
func (r *Report) Count(k Kind) int {
	n := 0
	for _, rec := range r.Records {
		if rec.Kind == k {
			n++
		}
	}
	return n
}

// WriteTo renders the report as text. Styling is applied only when w is a
// color-capable terminal.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	re := lipgloss.NewRenderer(w)
	heading := re.NewStyle().Bold(true)
	dim := re.NewStyle().Faint(true)
	kind := re.NewStyle().Width(13)
	miss := re.NewStyle().Foreground(lipgloss.Color("9"))

	var buf bytes.Buffer
	for _, typ := range r.Types() {
		fmt.Fprintln(&buf, heading.Render(typ))
		for _, rec := range r.ByType(typ) {
			loc := fmt.Sprintf("%s:%d", rec.Path, rec.Line)
			fmt.Fprintf(&buf, "  %s %s %s%s\n", dim.Render(loc), kind.Render(string(rec.Kind)), rec.Detail, r.suffix(rec, miss))
		}
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintln(&buf, heading.Render("skipped"))
		for _, s := range r.Skipped {
			fmt.Fprintf(&buf, "  %s: %s\n", s.Type, s.Reason)
		}
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

func (r *Report) suffix(rec Record, miss lipgloss.Style) string {
	var s string
	switch {
	case rec.Kind == KindPublisher:
		return ""
	case rec.Self:
		s = " -> self"
	case rec.Resolved():
		s = " -> " + rec.Target
	default:
		return " " + miss.Render("(unresolved)")
	}
	if rec.Pattern != "" {
		s += " [" + rec.Pattern + "]"
	}
	if rec.Virtual {
		s += " [virtual]"
	}
	return s
}

func (r *Report) String() string {
	var buf bytes.Buffer
	_, _ = r.WriteTo(&buf)
	return buf.String()
}
