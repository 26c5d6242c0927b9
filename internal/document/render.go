package document

import (
	"bytes"
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/sagecache/internal/evalstore"
	"git.home.luguber.info/inful/sagecache/internal/logfields"
	"git.home.luguber.info/inful/sagecache/internal/result"
)

// Reader is the part of the evaluation cache rendering reads from.
type Reader interface {
	GetCodeByOrder(ctx context.Context, source string, order int) (evalstore.CodeBlock, bool, error)
	GetCodeByUserID(ctx context.Context, source, userID string) (evalstore.CodeBlock, bool, error)
	GetResults(ctx context.Context, codeID int64) ([]result.Result, error)
}

// Renderer writes documents back out with cached output after each code block.
type Renderer struct {
	store      Reader
	filePrefix string
}

// RenderOption configures a Renderer.
type RenderOption func(*Renderer)

// WithFilePrefix sets the URL prefix under which stored result files are
// served. Files without a stored copy link to the backend URL.
func WithFilePrefix(prefix string) RenderOption {
	return func(r *Renderer) { r.filePrefix = prefix }
}

// NewRenderer returns a renderer over store.
func NewRenderer(store Reader, opts ...RenderOption) *Renderer {
	r := &Renderer{store: store, filePrefix: "/files/"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type edit struct {
	span    Span
	replace bool
	html    string
}

// Render parses content and returns it with output blocks inserted.
func (r *Renderer) Render(ctx context.Context, path string, content []byte) ([]byte, error) {
	doc, err := Parse(path, content)
	if err != nil {
		return nil, err
	}
	return r.RenderDocument(ctx, doc)
}

// RenderDocument returns doc with output blocks inserted. A block whose
// cached copy is missing or differs from the document renders as pending.
func (r *Renderer) RenderDocument(ctx context.Context, doc *Document) ([]byte, error) {
	var edits []edit
	if !doc.Options.Disabled {
		for _, b := range doc.Blocks {
			stored, found, err := r.store.GetCodeByOrder(ctx, doc.Path, b.Order)
			if err != nil {
				return nil, err
			}
			var out string
			if found && stored.Content == b.Content {
				out, err = r.Output(ctx, stored)
				if err != nil {
					return nil, err
				}
			} else {
				out = pendingOutput(b.Order)
			}
			edits = append(edits, edit{span: b.Span, html: out})
		}
	}
	for _, ref := range doc.Refs {
		src := ref.Source
		if src == "" {
			src = doc.Path
		}
		stored, found, err := r.store.GetCodeByUserID(ctx, src, ref.UserID)
		if err != nil {
			return nil, err
		}
		out := missingOutput(src, ref.UserID)
		if found {
			if out, err = r.Output(ctx, stored); err != nil {
				return nil, err
			}
		} else {
			slog.Warn("Result reference points at an unknown block",
				logfields.Source(doc.Path), slog.String("ref_source", src), logfields.UserID(ref.UserID))
		}
		edits = append(edits, edit{span: ref.Span, replace: true, html: out})
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].span.Start < edits[j].span.Start })

	var body bytes.Buffer
	pos := 0
	for _, e := range edits {
		if e.replace {
			body.Write(doc.Body[pos:e.span.Start])
		} else {
			body.Write(doc.Body[pos:e.span.End])
			if e.span.End > 0 && doc.Body[e.span.End-1] != '\n' {
				body.WriteString(doc.Newline)
			}
		}
		body.WriteString(e.html)
		body.WriteString(doc.Newline + doc.Newline)
		pos = e.span.End
	}
	body.Write(doc.Body[pos:])
	return joinFrontMatter(doc.FrontMatter, body.Bytes(), doc.HadFront, doc.Newline), nil
}

// Output renders the cached results of block as one HTML element.
func (r *Renderer) Output(ctx context.Context, block evalstore.CodeBlock) (string, error) {
	if !block.Evaluated() {
		return pendingOutput(block.Order), nil
	}
	results, err := r.store.GetResults(ctx, block.ID)
	if err != nil {
		return "", err
	}
	div := element(atom.Div,
		attr("class", "sage-output"),
		attr("data-code-id", strconv.FormatInt(block.ID, 10)))
	for _, res := range results {
		for _, n := range r.resultNodes(res) {
			div.AppendChild(n)
		}
	}
	return renderNode(div)
}

func (r *Renderer) resultNodes(res result.Result) []*html.Node {
	switch v := res.(type) {
	case result.Stream:
		switch v.Mime {
		case result.MimeTextHTML:
			wrap := element(atom.Div, attr("class", "sage-html"))
			nodes, err := html.ParseFragment(strings.NewReader(v.Data), &html.Node{
				Type: html.ElementNode, DataAtom: atom.Div, Data: "div",
			})
			if err != nil {
				wrap.AppendChild(textNode(v.Data))
				return []*html.Node{wrap}
			}
			for _, n := range nodes {
				wrap.AppendChild(n)
			}
			return []*html.Node{wrap}
		case result.MimeImagePNG, result.MimeImageJPEG:
			data := strings.Join(strings.Fields(v.Data), "")
			return []*html.Node{element(atom.Img,
				attr("class", "sage-image"),
				attr("src", "data:"+v.Mime+";base64,"+data))}
		default:
			pre := element(atom.Pre, attr("class", "sage-stream"))
			pre.AppendChild(textNode(v.Data))
			return []*html.Node{pre}
		}
	case result.Image:
		src := v.URL
		if v.Key != "" {
			src = r.filePrefix + v.Key
		}
		return []*html.Node{element(atom.Img,
			attr("class", "sage-image"),
			attr("src", src),
			attr("alt", v.Name))}
	case result.Error:
		pre := element(atom.Pre, attr("class", "sage-error"))
		name := element(atom.Span, attr("class", "sage-ename"))
		name.AppendChild(textNode(v.EName))
		pre.AppendChild(name)
		msg := ": " + v.EValue
		if v.Traceback != "" {
			msg += "\n" + stripANSI(v.Traceback)
		}
		pre.AppendChild(textNode(msg))
		return []*html.Node{pre}
	}
	return nil
}

func pendingOutput(order int) string {
	return `<div class="sage-output sage-pending" data-order="` + strconv.Itoa(order) + `"></div>`
}

func missingOutput(src, id string) string {
	return `<div class="sage-output sage-missing" data-src="` + html.EscapeString(src) +
		`" data-id="` + html.EscapeString(id) + `"></div>`
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func renderNode(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return protectBlankLines(buf.String()), nil
}

// protectBlankLines keeps the output a single Markdown HTML block: a blank
// line would end it, so newlines before blank lines become character references.
func protectBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			if strings.TrimSpace(l) == "" && i < len(lines)-1 {
				b.WriteString("&#10;")
			} else {
				b.WriteString("\n")
			}
		}
		b.WriteString(l)
	}
	return b.String()
}

var ansiEscape = regexp.MustCompile("\x1b\\[[0-9;]*[A-Za-z]")

func stripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}
