// Package document finds executable code blocks in Markdown sources, records
// them in the evaluation cache and renders documents with their cached output.
//
// A fenced block whose info string starts with a known language is executable:
//
//	```sage id=plot platform=sage
//	plot(sin(x), (x, 0, pi))
//	```
//
// A fenced block with the info string `result src=<path> id=<id>` is replaced
// by the output of the block with that id in the named source.
package document

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/inful/mdfp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/sagecache/internal/foundation/errors"
)

// Platform tags understood by the execution backends.
const (
	PlatformSage     = "sage"
	PlatformIPython  = "ipython"
	PlatformIHaskell = "ihaskell"
)

// languages maps each recognized language to its default platform.
var languages = map[string]string{
	"sage":    PlatformSage,
	"python":  PlatformSage,
	"r":       PlatformSage,
	"octave":  PlatformSage,
	"maxima":  PlatformSage,
	"gap":     PlatformSage,
	"gp":      PlatformSage,
	"haskell": PlatformIHaskell,
	"scala":   PlatformIPython,
	"java":    PlatformIPython,
	"groovy":  PlatformIPython,
	"kotlin":  PlatformIPython,
	"clojure": PlatformIPython,
}

// resultInfo is the info-string keyword of a result reference block.
const resultInfo = "result"

// IsLanguage reports whether lang names an executable language.
func IsLanguage(lang string) bool {
	_, ok := languages[strings.ToLower(lang)]
	return ok
}

// Span is a byte range of the document body.
type Span struct {
	Start int
	End   int
}

// Block is one executable fenced code block.
type Block struct {
	Order    int
	UserID   string
	Language string
	Platform string
	Content  string
	Span     Span
}

// ResultRef is a block that displays the output of another block.
type ResultRef struct {
	// Source is empty when the referenced block is in the same document.
	Source string
	UserID string
	Span   Span
}

// Document is a parsed source.
type Document struct {
	Path        string
	FrontMatter []byte
	HadFront    bool
	Newline     string
	Body        []byte
	Options     Options
	Blocks      []Block
	Refs        []ResultRef
	Fingerprint string
}

// Parse reads a Markdown source. Block content is normalized to NFC with LF
// line endings so that cosmetic re-encoding does not invalidate cached results.
func Parse(path string, content []byte) (*Document, error) {
	front, body, had, err := splitFrontMatter(content)
	if err != nil {
		return nil, errors.DocumentError("split front matter").
			WithCause(err).
			WithContext("source", path).
			Build()
	}
	opts, err := parseOptions(front)
	if err != nil {
		return nil, errors.DocumentError("parse front matter").
			WithCause(err).
			WithContext("source", path).
			Build()
	}

	doc := &Document{
		Path:        path,
		FrontMatter: front,
		HadFront:    had,
		Newline:     newlineOf(content),
		Body:        body,
		Options:     opts,
		Fingerprint: mdfp.CalculateFingerprintFromParts(string(front), string(body)),
	}

	root := goldmark.New().Parser().Parse(text.NewReader(body))
	err = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		fenced, ok := n.(*ast.FencedCodeBlock)
		if !entering || !ok || fenced.Info == nil {
			return ast.WalkContinue, nil
		}
		doc.addFenced(fenced)
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, errors.DocumentError("walk markdown").WithCause(err).WithContext("source", path).Build()
	}
	return doc, nil
}

func (d *Document) addFenced(n *ast.FencedCodeBlock) {
	lang, attrs := parseInfo(string(n.Info.Segment.Value(d.Body)))
	span := fencedSpan(d.Body, n)
	if lang == resultInfo {
		if attrs["id"] == "" {
			return
		}
		d.Refs = append(d.Refs, ResultRef{Source: attrs["src"], UserID: attrs["id"], Span: span})
		return
	}
	platform, ok := languages[lang]
	if !ok {
		return
	}
	if d.Options.Platform != "" {
		platform = d.Options.Platform
	}
	if p := attrs["platform"]; p != "" {
		platform = p
	}

	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(d.Body))
	}
	content := norm.NFC.String(strings.ReplaceAll(buf.String(), "\r\n", "\n"))

	userID := attrs["id"]
	if userID == "" {
		userID = commentID(content)
	}
	d.Blocks = append(d.Blocks, Block{
		Order:    len(d.Blocks),
		UserID:   userID,
		Language: lang,
		Platform: platform,
		Content:  content,
		Span:     span,
	})
}

// parseInfo splits a fence info string into its language and key=value attributes.
func parseInfo(info string) (string, map[string]string) {
	attrs := map[string]string{}
	fields := splitInfo(info)
	if len(fields) == 0 {
		return "", attrs
	}
	lang := strings.ToLower(strings.Trim(fields[0], "{}"))
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		if uq, err := strconv.Unquote(v); err == nil {
			v = uq
		}
		attrs[strings.ToLower(k)] = v
	}
	return lang, attrs
}

// splitInfo splits on whitespace outside double quotes.
func splitInfo(info string) []string {
	var (
		fields []string
		cur    strings.Builder
		quoted bool
	)
	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}
	for _, r := range info {
		switch {
		case r == '"':
			quoted = !quoted
			cur.WriteRune(r)
		case !quoted && (r == ' ' || r == '\t' || r == '\r'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return fields
}

// commentID reads an id declared on the first line, e.g. "# id: setup".
func commentID(content string) string {
	first, _, _ := strings.Cut(content, "\n")
	first = strings.TrimSpace(first)
	for _, prefix := range []string{"#", "--", "//", "%"} {
		rest, ok := strings.CutPrefix(first, prefix)
		if !ok {
			continue
		}
		if id, ok := strings.CutPrefix(strings.TrimSpace(rest), "id:"); ok {
			return strings.TrimSpace(id)
		}
	}
	return ""
}

// fencedSpan covers the opening fence line through the closing fence line.
func fencedSpan(body []byte, n *ast.FencedCodeBlock) Span {
	start := bytes.LastIndexByte(body[:n.Info.Segment.Start], '\n') + 1

	pos := lineEnd(body, n.Info.Segment.Stop)
	if lines := n.Lines(); lines.Len() > 0 {
		pos = lines.At(lines.Len() - 1).Stop
	}
	end := pos
	if pos < len(body) {
		line := strings.TrimLeft(string(body[pos:lineEnd(body, pos)]), " \t>")
		if strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~") {
			end = lineEnd(body, pos)
		}
	}
	return Span{Start: start, End: end}
}

// lineEnd returns the offset just past the newline ending the line at pos.
func lineEnd(body []byte, pos int) int {
	if i := bytes.IndexByte(body[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(body)
}
