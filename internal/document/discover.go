package document

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/sagecache/internal/evalstore"
	"git.home.luguber.info/inful/sagecache/internal/logfields"
)

// Registry is the part of the evaluation cache discovery writes to.
type Registry interface {
	GetSource(ctx context.Context, path string) (evalstore.Source, bool, error)
	RegisterSource(ctx context.Context, path string) (evalstore.Source, error)
	SetSourceFingerprint(ctx context.Context, path, fingerprint string) error
	UpsertCode(ctx context.Context, p evalstore.UpsertParams) (evalstore.CodeBlock, error)
	TruncateSource(ctx context.Context, path string, count int) (int, error)
	RegisterReference(ctx context.Context, from, to string) (evalstore.Reference, error)
}

// Discovery reports what Discover did with a document.
type Discovery struct {
	Document *Document
	// Unchanged is set when the stored fingerprint matched and nothing was written.
	Unchanged bool
	// Removed counts blocks dropped because the document now has fewer.
	Removed int
}

// Discover parses the document at path and records its code blocks, in
// document order, and its result references. Documents whose fingerprint
// matches the one recorded by the previous discovery are left untouched.
func Discover(ctx context.Context, reg Registry, path string, content []byte) (Discovery, error) {
	doc, err := Parse(path, content)
	if err != nil {
		return Discovery{}, err
	}
	out := Discovery{Document: doc}

	src, found, err := reg.GetSource(ctx, path)
	if err != nil {
		return out, err
	}
	if found && src.Fingerprint == doc.Fingerprint {
		out.Unchanged = true
		return out, nil
	}
	if _, err := reg.RegisterSource(ctx, path); err != nil {
		return out, err
	}

	blocks := doc.Blocks
	if doc.Options.Disabled {
		blocks = nil
	}
	for _, b := range blocks {
		if _, err := reg.UpsertCode(ctx, evalstore.UpsertParams{
			Source:   path,
			Order:    b.Order,
			UserID:   b.UserID,
			Content:  b.Content,
			Language: b.Language,
			Platform: b.Platform,
		}); err != nil {
			return out, err
		}
	}
	if out.Removed, err = reg.TruncateSource(ctx, path, len(blocks)); err != nil {
		return out, err
	}

	for _, ref := range doc.Refs {
		if ref.Source == "" || ref.Source == path {
			continue
		}
		if _, err := reg.RegisterReference(ctx, path, ref.Source); err != nil {
			return out, err
		}
	}

	if err := reg.SetSourceFingerprint(ctx, path, doc.Fingerprint); err != nil {
		return out, err
	}
	slog.Debug("Discovered document",
		logfields.Source(path),
		slog.Int("blocks", len(blocks)),
		slog.Int("references", len(doc.Refs)),
		slog.Int("removed", out.Removed))
	return out, nil
}
