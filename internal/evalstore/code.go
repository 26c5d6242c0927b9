package evalstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/sagecache/internal/logfields"
)

const blockColumns = `c.id, c.src_id, s.path, c.ord, c.user_id, c.content, c.language, c.platform,
	c.last_evaluated, c.permalink`

const blockFrom = " FROM code_blocks c JOIN sources s ON s.id = c.src_id "

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(r rowScanner) (CodeBlock, error) {
	var (
		b         CodeBlock
		userID    sql.NullString
		evaluated sql.NullInt64
	)
	if err := r.Scan(&b.ID, &b.SourceID, &b.SourcePath, &b.Order, &userID, &b.Content,
		&b.Language, &b.Platform, &evaluated, &b.Permalink); err != nil {
		return CodeBlock{}, err
	}
	b.UserID = userID.String
	if evaluated.Valid {
		t := time.Unix(0, evaluated.Int64)
		b.LastEvaluated = &t
	}
	return b, nil
}

func queryBlock(ctx context.Context, q queryer, where string, args ...any) (CodeBlock, bool, error) {
	b, err := scanBlock(q.QueryRowContext(ctx, "SELECT "+blockColumns+blockFrom+where, args...))
	if stderrors.Is(err, sql.ErrNoRows) {
		return CodeBlock{}, false, nil
	}
	if err != nil {
		return CodeBlock{}, false, fmt.Errorf("query code block: %w", err)
	}
	return b, true, nil
}

func queryBlocks(ctx context.Context, q queryer, where string, args ...any) ([]CodeBlock, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+blockColumns+blockFrom+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query code blocks: %w", err)
	}
	defer rows.Close()

	var out []CodeBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan code block: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpsertCode registers the block found at (p.Source, p.Order).
//
// A user id already held by another block of the same source moves to this
// one. An unchanged block is returned as-is. A block whose content changed is
// reset to unevaluated, every result of its source is dropped and all blocks
// of the source with a higher order are deleted, in one transaction.
func (s *Store) UpsertCode(ctx context.Context, p UpsertParams) (CodeBlock, error) {
	var (
		block       CodeBlock
		invalidated []int64
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		src, err := ensureSource(ctx, tx, p.Source)
		if err != nil {
			return err
		}
		if p.UserID != "" {
			if _, err := tx.ExecContext(ctx,
				"UPDATE code_blocks SET user_id = NULL WHERE src_id = ? AND user_id = ? AND ord <> ?",
				src.ID, p.UserID, p.Order,
			); err != nil {
				return fmt.Errorf("release user id: %w", err)
			}
		}

		existing, found, err := queryBlock(ctx, tx, "WHERE c.src_id = ? AND c.ord = ?", src.ID, p.Order)
		if err != nil {
			return err
		}

		switch {
		case !found:
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO code_blocks (src_id, ord, user_id, content, language, platform)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				src.ID, p.Order, nullString(p.UserID), p.Content, p.Language, p.Platform,
			); err != nil {
				return fmt.Errorf("insert code block: %w", err)
			}
		case existing.Content == p.Content:
			if existing.UserID != p.UserID {
				if _, err := tx.ExecContext(ctx,
					"UPDATE code_blocks SET user_id = ? WHERE id = ?", nullString(p.UserID), existing.ID,
				); err != nil {
					return fmt.Errorf("update user id: %w", err)
				}
			}
		default:
			invalidated, err = invalidateSource(ctx, tx, src.ID, existing.Order)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE code_blocks SET content = ?, user_id = ?, language = ?, platform = ?,
				 last_evaluated = NULL, permalink = '' WHERE id = ?`,
				p.Content, nullString(p.UserID), p.Language, p.Platform, existing.ID,
			); err != nil {
				return fmt.Errorf("update code block: %w", err)
			}
		}

		block, _, err = queryBlock(ctx, tx, "WHERE c.src_id = ? AND c.ord = ?", src.ID, p.Order)
		return err
	})
	if err != nil {
		return CodeBlock{}, storeErr("upsert code block", err)
	}

	if len(invalidated) > 0 {
		slog.Debug("Invalidated source after content change",
			logfields.Source(p.Source), logfields.Order(p.Order), slog.Int("blocks", len(invalidated)))
		s.dropArtifacts(ctx, invalidated)
	}
	return block, nil
}

// invalidateSource deletes every result of the source's blocks and the blocks
// ordered after changedOrder. It returns the ids of all affected blocks.
func invalidateSource(ctx context.Context, tx *sql.Tx, srcID int64, changedOrder int) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, "SELECT id FROM code_blocks WHERE src_id = ?", srcID)
	if err != nil {
		return nil, fmt.Errorf("list source blocks: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan block id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	for _, table := range resultTables {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE code_id IN (SELECT id FROM code_blocks WHERE src_id = ?)", srcID,
		); err != nil {
			return nil, fmt.Errorf("delete %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM code_blocks WHERE src_id = ? AND ord > ?", srcID, changedOrder,
	); err != nil {
		return nil, fmt.Errorf("delete later blocks: %w", err)
	}
	return ids, nil
}

// TruncateSource deletes the blocks of path at or after order count, used when
// a document now holds fewer blocks than were recorded for it.
func (s *Store) TruncateSource(ctx context.Context, path string, count int) (int, error) {
	var removed []int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		src, found, err := sourceByPath(ctx, tx, path)
		if err != nil || !found {
			return err
		}
		blocks, err := queryBlocks(ctx, tx, "WHERE c.src_id = ? AND c.ord >= ?", src.ID, count)
		if err != nil {
			return err
		}
		for _, b := range blocks {
			removed = append(removed, b.ID)
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM code_blocks WHERE src_id = ? AND ord >= ?", src.ID, count)
		return err
	})
	if err != nil {
		return 0, storeErr("truncate source", err)
	}
	s.dropArtifacts(ctx, removed)
	return len(removed), nil
}

// GetCode looks a block up by id.
func (s *Store) GetCode(ctx context.Context, codeID int64) (CodeBlock, bool, error) {
	b, found, err := queryBlock(ctx, s.db, "WHERE c.id = ?", codeID)
	if err != nil {
		return CodeBlock{}, false, storeErr("get code block", err)
	}
	return b, found, nil
}

// GetCodeByUserID looks a block up by its user id within a source.
func (s *Store) GetCodeByUserID(ctx context.Context, source, userID string) (CodeBlock, bool, error) {
	if userID == "" {
		return CodeBlock{}, false, nil
	}
	b, found, err := queryBlock(ctx, s.db, "WHERE s.path = ? AND c.user_id = ?", source, userID)
	if err != nil {
		return CodeBlock{}, false, storeErr("get code block by user id", err)
	}
	return b, found, nil
}

// GetCodeByOrder looks a block up by its position within a source.
func (s *Store) GetCodeByOrder(ctx context.Context, source string, order int) (CodeBlock, bool, error) {
	b, found, err := queryBlock(ctx, s.db, "WHERE s.path = ? AND c.ord = ?", source, order)
	if err != nil {
		return CodeBlock{}, false, storeErr("get code block by order", err)
	}
	return b, found, nil
}

// Blocks returns the blocks of source in ascending order.
func (s *Store) Blocks(ctx context.Context, source string) ([]CodeBlock, error) {
	blocks, err := queryBlocks(ctx, s.db, "WHERE s.path = ? ORDER BY c.ord", source)
	if err != nil {
		return nil, storeErr("list code blocks", err)
	}
	return blocks, nil
}

// MarkEvaluated stamps the block as evaluated at the store clock's now.
func (s *Store) MarkEvaluated(ctx context.Context, codeID int64) error {
	return s.MarkEvaluatedAt(ctx, codeID, s.now())
}

// MarkEvaluatedAt stamps the block as evaluated at ts. Marking again only
// moves the timestamp.
func (s *Store) MarkEvaluatedAt(ctx context.Context, codeID int64, ts time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE code_blocks SET last_evaluated = ? WHERE id = ?", ts.UnixNano(), codeID)
	if err != nil {
		return storeErr("mark evaluated", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storeErr("mark evaluated", fmt.Errorf("code block %d not found", codeID))
	}
	return nil
}
