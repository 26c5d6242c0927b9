package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fence lets test documents spell code fences as ''' inside raw strings.
func fence(s string) []byte {
	return []byte(strings.ReplaceAll(s, "'''", "```"))
}

const demoDoc = `---
title: Demo
---
# Demo

'''sage id=setup
x = 1
'''

Some text.

'''python
# id: show
print(x)
'''

'''bash
echo not executable
'''

'''result src=other.md id=plot
'''
`

func TestParse(t *testing.T) {
	doc, err := Parse("demo.md", fence(demoDoc))
	require.NoError(t, err)

	assert.True(t, doc.HadFront)
	assert.Equal(t, "title: Demo\n", string(doc.FrontMatter))
	assert.NotEmpty(t, doc.Fingerprint)

	require.Len(t, doc.Blocks, 2)
	b0, b1 := doc.Blocks[0], doc.Blocks[1]
	assert.Equal(t, 0, b0.Order)
	assert.Equal(t, "setup", b0.UserID)
	assert.Equal(t, "sage", b0.Language)
	assert.Equal(t, PlatformSage, b0.Platform)
	assert.Equal(t, "x = 1\n", b0.Content)
	assert.Equal(t, "```sage id=setup\nx = 1\n```\n", string(doc.Body[b0.Span.Start:b0.Span.End]))

	assert.Equal(t, 1, b1.Order)
	assert.Equal(t, "show", b1.UserID)
	assert.Equal(t, "python", b1.Language)
	assert.Equal(t, "# id: show\nprint(x)\n", b1.Content)

	require.Len(t, doc.Refs, 1)
	assert.Equal(t, ResultRef{Source: "other.md", UserID: "plot", Span: doc.Refs[0].Span}, doc.Refs[0])
	assert.Equal(t, "```result src=other.md id=plot\n```\n", string(doc.Body[doc.Refs[0].Span.Start:doc.Refs[0].Span.End]))
}

func TestParse_PlatformSelection(t *testing.T) {
	doc, err := Parse("p.md", fence(`---
sagecache:
  platform: ipython
---
'''sage
1
'''

'''haskell platform=ihaskell
2
'''
`))
	require.NoError(t, err)
	require.Len(t, doc.Blocks, 2)
	assert.Equal(t, PlatformIPython, doc.Blocks[0].Platform)
	assert.Equal(t, PlatformIHaskell, doc.Blocks[1].Platform)

	doc, err = Parse("q.md", fence("'''haskell\nmain\n'''\n'''scala\n1\n'''\n"))
	require.NoError(t, err)
	require.Len(t, doc.Blocks, 2)
	assert.Equal(t, PlatformIHaskell, doc.Blocks[0].Platform)
	assert.Equal(t, PlatformIPython, doc.Blocks[1].Platform)
}

func TestParse_NormalizesContent(t *testing.T) {
	// Decomposed e + combining acute accent, with CRLF line endings.
	doc, err := Parse("n.md", []byte("```sage\r\nprint(\"e\u0301\")\r\n```\r\n"))
	require.NoError(t, err)
	require.Len(t, doc.Blocks, 1)
	assert.Equal(t, "print(\"\u00e9\")\n", doc.Blocks[0].Content)
}

func TestParse_UnclosedFence(t *testing.T) {
	doc, err := Parse("u.md", fence("'''sage\nx = 1\n"))
	require.NoError(t, err)
	require.Len(t, doc.Blocks, 1)
	assert.Equal(t, "x = 1\n", doc.Blocks[0].Content)
	assert.Equal(t, len(doc.Body), doc.Blocks[0].Span.End)
}

func TestParse_FrontMatterErrors(t *testing.T) {
	_, err := Parse("bad.md", []byte("---\ntitle: x\nno closing\n"))
	require.Error(t, err)

	_, err = Parse("bad.md", []byte("---\nsagecache: [\n---\n"))
	require.Error(t, err)
}

func TestParseInfo(t *testing.T) {
	lang, attrs := parseInfo(`Sage id="my block" platform=sage flag`)
	assert.Equal(t, "sage", lang)
	assert.Equal(t, map[string]string{"id": "my block", "platform": "sage"}, attrs)

	lang, _ = parseInfo("{python}")
	assert.Equal(t, "python", lang)
}

func TestCommentID(t *testing.T) {
	assert.Equal(t, "a", commentID("# id: a\nx"))
	assert.Equal(t, "b", commentID("-- id: b"))
	assert.Equal(t, "c", commentID("  // id:c\n"))
	assert.Empty(t, commentID("# just a comment"))
	assert.Empty(t, commentID("x = 1 # id: d"))
}

func TestIsLanguage(t *testing.T) {
	assert.True(t, IsLanguage("Sage"))
	assert.True(t, IsLanguage("gp"))
	assert.False(t, IsLanguage("bash"))
}

func TestSplitFrontMatter(t *testing.T) {
	front, body, had, err := splitFrontMatter([]byte("---\r\na: 1\r\n---\r\nbody\r\n"))
	require.NoError(t, err)
	assert.True(t, had)
	assert.Equal(t, "a: 1\r\n", string(front))
	assert.Equal(t, "body\r\n", string(body))

	_, body, had, err = splitFrontMatter([]byte("no front matter"))
	require.NoError(t, err)
	assert.False(t, had)
	assert.Equal(t, "no front matter", string(body))

	front, body, had, err = splitFrontMatter([]byte("---\n---\nbody"))
	require.NoError(t, err)
	assert.True(t, had)
	assert.Empty(t, front)
	assert.Equal(t, "body", string(body))

	assert.Equal(t, "---\na: 1\n---\nbody", string(joinFrontMatter([]byte("a: 1\n"), []byte("body"), true, "\n")))
}
