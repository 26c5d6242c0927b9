package evalstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const sourceColumns = "id, path, filetype, permalink, fingerprint"

// RegisterSource returns the source at path, creating it on first mention.
func (s *Store) RegisterSource(ctx context.Context, path string) (Source, error) {
	var src Source
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		src, err = ensureSource(ctx, tx, path)
		return err
	})
	if err != nil {
		return Source{}, storeErr("register source", err)
	}
	return src, nil
}

func ensureSource(ctx context.Context, q queryer, path string) (Source, error) {
	if path == "" {
		return Source{}, fmt.Errorf("source path is empty")
	}
	if _, err := q.ExecContext(ctx,
		"INSERT INTO sources (path, filetype) VALUES (?, ?) ON CONFLICT(path) DO NOTHING",
		path, fileTypeOf(path),
	); err != nil {
		return Source{}, fmt.Errorf("insert source: %w", err)
	}
	src, found, err := sourceByPath(ctx, q, path)
	if err != nil {
		return Source{}, err
	}
	if !found {
		return Source{}, fmt.Errorf("source %s vanished after insert", path)
	}
	return src, nil
}

func sourceByPath(ctx context.Context, q queryer, path string) (Source, bool, error) {
	var src Source
	err := q.QueryRowContext(ctx,
		"SELECT "+sourceColumns+" FROM sources WHERE path = ?", path,
	).Scan(&src.ID, &src.Path, &src.FileType, &src.Permalink, &src.Fingerprint)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Source{}, false, nil
	}
	if err != nil {
		return Source{}, false, fmt.Errorf("query source: %w", err)
	}
	return src, true, nil
}

// GetSource looks a source up by path.
func (s *Store) GetSource(ctx context.Context, path string) (Source, bool, error) {
	src, found, err := sourceByPath(ctx, s.db, path)
	if err != nil {
		return Source{}, false, storeErr("get source", err)
	}
	return src, found, nil
}

// ListSources returns every known source ordered by path.
func (s *Store) ListSources(ctx context.Context) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+sourceColumns+" FROM sources ORDER BY path")
	if err != nil {
		return nil, storeErr("list sources", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.ID, &src.Path, &src.FileType, &src.Permalink, &src.Fingerprint); err != nil {
			return nil, storeErr("scan source", err)
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate sources", err)
	}
	return out, nil
}

// SetSourceFingerprint records the content fingerprint of the document last
// discovered for path.
func (s *Store) SetSourceFingerprint(ctx context.Context, path, fingerprint string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		src, err := ensureSource(ctx, tx, path)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "UPDATE sources SET fingerprint = ? WHERE id = ?", fingerprint, src.ID)
		return err
	})
	if err != nil {
		return storeErr("set source fingerprint", err)
	}
	return nil
}

// RegisterReference records that from looks up results of to. Both sources
// are created if needed; re-registering an existing pair is a no-op.
func (s *Store) RegisterReference(ctx context.Context, from, to string) (Reference, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		a, err := ensureSource(ctx, tx, from)
		if err != nil {
			return err
		}
		b, err := ensureSource(ctx, tx, to)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO src_references (src_id1, src_id2) VALUES (?, ?) ON CONFLICT DO NOTHING",
			a.ID, b.ID)
		return err
	})
	if err != nil {
		return Reference{}, storeErr("register reference", err)
	}
	return Reference{From: from, To: to}, nil
}

// References returns every recorded reference.
func (s *Store) References(ctx context.Context) ([]Reference, error) {
	refs, err := listReferences(ctx, s.db)
	if err != nil {
		return nil, storeErr("list references", err)
	}
	return refs, nil
}

func listReferences(ctx context.Context, q queryer) ([]Reference, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT a.path, b.path FROM src_references r
		JOIN sources a ON a.id = r.src_id1
		JOIN sources b ON b.id = r.src_id2
		ORDER BY a.path, b.path`)
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}
	defer rows.Close()

	var refs []Reference
	for rows.Next() {
		var ref Reference
		if err := rows.Scan(&ref.From, &ref.To); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
