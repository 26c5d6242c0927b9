// Package evalstore is the evaluation cache: a SQLite-backed record of the
// code blocks found in each source document, when each was last evaluated and
// the ordered results that evaluation produced.
//
// Blocks are keyed by (source, order) and optionally by (source, user id).
// Changing the content of a block invalidates the whole source: every cached
// result of the source is dropped and all blocks after the changed one are
// deleted, since they ran in the same namespace and may depend on it.
package evalstore

import (
	"path"
	"strings"
	"time"
)

// PlatformNotebook marks blocks and sources carrying pre-rendered notebook
// output. They are never scheduled for evaluation.
const PlatformNotebook = "ipynb"

// Source is one document contributing code blocks.
type Source struct {
	ID          int64
	Path        string
	FileType    string
	Permalink   string
	Fingerprint string
}

// CodeBlock is one executable unit within a Source.
type CodeBlock struct {
	ID            int64
	SourceID      int64
	SourcePath    string
	Order         int
	UserID        string // empty when the block has no stable id
	Content       string
	Language      string
	Platform      string
	LastEvaluated *time.Time
	Permalink     string
}

// Evaluated reports whether the block has cached results for its current content.
func (b CodeBlock) Evaluated() bool {
	return b.LastEvaluated != nil
}

// Reference records that From's content looks up results owned by To.
type Reference struct {
	From string
	To   string
}

// Group is the ordered block list of one source that needs evaluation.
type Group struct {
	Source Source
	Blocks []CodeBlock
}

// Pending returns the blocks of the group that have not been evaluated.
func (g Group) Pending() []CodeBlock {
	var out []CodeBlock
	for _, b := range g.Blocks {
		if !b.Evaluated() {
			out = append(out, b)
		}
	}
	return out
}

// UpsertParams describes one code block found while parsing a document.
type UpsertParams struct {
	Source   string
	Order    int
	UserID   string
	Content  string
	Language string
	Platform string
}

// fileTypeOf derives a source's file type from its path extension.
func fileTypeOf(p string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
}
