// Package render prints the presentation tree and the flat list as an indented text outline.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/Slach/systemlogs-timeline/pkg/classify"
	"github.com/Slach/systemlogs-timeline/pkg/logentry"
	"github.com/Slach/systemlogs-timeline/pkg/models"
	"github.com/Slach/systemlogs-timeline/pkg/tree"
	"github.com/alecthomas/chroma/v2/quick"
	"github.com/pkg/errors"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	timestampLayout = "2006-01-02 15:04:05.000"
	childIndent     = "    "
	markerCollapsed = "▸"
	markerExpanded  = "▾"
)

// ColorEnabled resolves --color (auto, always, never) against the output file.
func ColorEnabled(mode string, f *os.File) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	return f != nil && term.IsTerminal(int(f.Fd()))
}

type Options struct {
	Color   bool
	ShowRaw bool
	// Location for timestamps, UTC when nil.
	Location *time.Location
	// Details lists entry ids whose raw payload is printed even without ShowRaw.
	Details map[string]bool
}

type styles struct {
	danger  lipgloss.Style
	warning lipgloss.Style
	muted   lipgloss.Style
	marker  lipgloss.Style
	trace   lipgloss.Style
	count   lipgloss.Style
}

func newStyles() styles {
	return styles{
		danger:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		marker:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		trace:   lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		count:   lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true),
	}
}

// Text writes the outline to out.
type Text struct {
	out     io.Writer
	opts    Options
	printer *message.Printer
	styles  styles
}

func NewText(out io.Writer, opts Options) *Text {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Text{
		out:     out,
		opts:    opts,
		printer: message.NewPrinter(language.English),
		styles:  newStyles(),
	}
}

func (t *Text) paint(style lipgloss.Style, s string) string {
	if !t.opts.Color {
		return s
	}
	return style.Render(s)
}

func (t *Text) levelStyle(class classify.LevelClass) (lipgloss.Style, bool) {
	switch class {
	case classify.LevelDanger:
		return t.styles.danger, true
	case classify.LevelWarning:
		return t.styles.warning, true
	case classify.LevelMuted:
		return t.styles.muted, true
	}
	return lipgloss.Style{}, false
}

func (t *Text) count(n int) string {
	return t.printer.Sprintf("%d", n)
}

func (t *Text) timestamp(ts time.Time) string {
	return ts.In(t.opts.Location).Format(timestampLayout)
}

// Tree writes the presentation tree.
func (t *Text) Tree(nodes []tree.Node) error {
	var b strings.Builder
	for _, n := range nodes {
		t.node(&b, n, "")
	}
	return t.flush(&b)
}

// Flat writes the flat list, one line per duplicate run.
func (t *Text) Flat(runs []tree.DuplicateRun) error {
	var b strings.Builder
	for _, r := range runs {
		t.run(&b, r, "")
	}
	return t.flush(&b)
}

// Status writes the footer: the error of the last fetch, whether more pages exist, and the
// stats returned by the log service.
func (t *Text) Status(st models.State) error {
	var b strings.Builder
	if st.Error != "" {
		b.WriteString(t.paint(t.styles.danger, "error: "+st.Error) + "\n")
	}
	if st.HasMore && !st.LastTimestamp.IsZero() {
		b.WriteString(t.paint(t.styles.muted, "more entries before "+t.timestamp(st.LastTimestamp)) + "\n")
	}
	if len(st.Stats) > 0 && string(st.Stats) != "null" {
		b.WriteString(t.paint(t.styles.muted, "stats: "+string(st.Stats)) + "\n")
	}
	return t.flush(&b)
}

func (t *Text) flush(b *strings.Builder) error {
	if _, err := io.WriteString(t.out, b.String()); err != nil {
		return errors.Wrap(err, "can't write output")
	}
	return nil
}

func (t *Text) node(b *strings.Builder, n tree.Node, indent string) {
	switch n := n.(type) {
	case tree.Standalone:
		t.entry(b, n.Log, indent+"  ", "")
	case tree.TraceGroup:
		t.traceGroup(b, n, indent)
	case tree.PageLoadGroup:
		marker := markerCollapsed
		if n.Expanded {
			marker = markerExpanded
		}
		header := fmt.Sprintf("page load %s .. %s  %s entries",
			t.timestamp(n.FirstTimestamp), t.timestamp(n.LastTimestamp), t.count(n.ChildCount))
		b.WriteString(indent + t.paint(t.styles.marker, marker) + " " + header + "\n")
		if n.Expanded {
			for _, child := range n.Children {
				t.node(b, child, indent+"  ")
			}
		}
	}
}

func (t *Text) traceGroup(b *strings.Builder, g tree.TraceGroup, indent string) {
	marker := markerCollapsed
	if g.Expanded {
		marker = markerExpanded
	}
	info := []string{t.paint(t.styles.trace, g.TraceID), t.count(g.ChildCount) + " entries"}
	if len(g.Sources) > 0 {
		info = append(info, logentry.JoinSources(g.Sources))
	}
	if g.RouteSummary != "" {
		info = append(info, g.RouteSummary)
	}
	suffix := "  [" + strings.Join(info, "  ") + "]"
	t.entry(b, g.Parent, indent+t.paint(t.styles.marker, marker)+" ", suffix)

	if !g.Expanded {
		return
	}
	if g.Loading {
		b.WriteString(indent + childIndent + t.paint(t.styles.muted, "loading...") + "\n")
		return
	}
	for _, c := range g.Children {
		switch c := c.(type) {
		case tree.Single:
			t.entry(b, c.Log, indent+childIndent, "")
		case tree.DuplicateRun:
			t.run(b, c, indent+childIndent)
		}
	}
}

func (t *Text) run(b *strings.Builder, r tree.DuplicateRun, indent string) {
	suffix := ""
	if r.Count > 1 {
		first, last := r.Span()
		suffix = fmt.Sprintf("  %s  until %s", t.paint(t.styles.count, "×"+t.count(r.Count)), t.timestamp(last))
		if first.Equal(last) {
			suffix = "  " + t.paint(t.styles.count, "×"+t.count(r.Count))
		}
	}
	t.entry(b, r.First(), indent, suffix)
}

func (t *Text) entry(b *strings.Builder, e logentry.LogEntry, prefix, suffix string) {
	line := fmt.Sprintf("%s  %-10s %s", t.timestamp(e.Timestamp), e.Source, Describe(e))
	if style, ok := t.levelStyle(classify.ClassifyLevel(e)); ok {
		line = t.paint(style, line)
	}
	b.WriteString(prefix + line + suffix + "\n")

	if (t.opts.ShowRaw || t.opts.Details[e.ID.String()]) && len(e.Raw) > 0 {
		t.raw(b, e.Raw, strings.Repeat(" ", len([]rune(prefix)))+childIndent)
	}
}

func (t *Text) raw(b *strings.Builder, raw logentry.Raw, indent string) {
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return
	}
	body := string(data)
	if t.opts.Color {
		var highlighted strings.Builder
		if err := quick.Highlight(&highlighted, body, "json", "terminal256", "monokai"); err == nil {
			body = highlighted.String()
		}
	}
	for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
		b.WriteString(indent + line + "\n")
	}
}

// Describe is the one-line summary of an entry.
func Describe(e logentry.LogEntry) string {
	var parts []string
	switch e.Source {
	case logentry.SourceAPI:
		method := e.Raw.Str("method")
		if method == "" {
			method = "GET"
		}
		parts = append(parts, method+" "+classify.APIPath(e.Raw))
		for _, key := range []string{"status_code", "status"} {
			if status, ok := e.Raw.Float(key); ok {
				parts = append(parts, "-> "+strconv.FormatFloat(status, 'f', -1, 64))
				break
			}
		}
	case logentry.SourceClient:
		parts = append(parts, tree.ClientEventType(e))
		if url := classify.PageURL(e.Raw); url != "" {
			parts = append(parts, url)
		}
	default:
		if kind := joinNonEmpty("/", e.Type, e.Subtype); kind != "" {
			parts = append(parts, kind)
		}
		if e.Text != "" {
			parts = append(parts, e.Text)
		}
	}
	if e.UserID != 0 {
		parts = append(parts, "user="+strconv.FormatInt(e.UserID, 10))
	}
	if e.ByUserID != 0 && e.ByUserID != e.UserID {
		parts = append(parts, "by="+strconv.FormatInt(e.ByUserID, 10))
	}
	return strings.Join(parts, " ")
}

func joinNonEmpty(sep string, values ...string) string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}
