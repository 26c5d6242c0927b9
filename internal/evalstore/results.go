package evalstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/sagecache/internal/artifact"
	"git.home.luguber.info/inful/sagecache/internal/foundation/errors"
	"git.home.luguber.info/inful/sagecache/internal/logfields"
	"git.home.luguber.info/inful/sagecache/internal/result"
)

var resultTables = []string{"stream_results", "file_results", "error_results"}

// AppendResult persists one result for the block. Image results are stored
// as-is; use SaveFile or CreateFile to also keep the file bytes.
func (s *Store) AppendResult(ctx context.Context, codeID int64, r result.Result) error {
	if err := insertResult(ctx, s.db, codeID, r); err != nil {
		return storeErr("append result", err)
	}
	return nil
}

func insertResult(ctx context.Context, q queryer, codeID int64, r result.Result) error {
	var err error
	switch v := r.(type) {
	case result.Stream:
		_, err = q.ExecContext(ctx,
			"INSERT INTO stream_results (code_id, ord, mimetype, data) VALUES (?, ?, ?, ?)",
			codeID, v.Order, v.Mime, v.Data)
	case result.Image:
		_, err = q.ExecContext(ctx,
			`INSERT INTO file_results (code_id, ord, mimetype, file_name, url, artifact_key)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			codeID, v.Order, v.Mime, v.Name, v.URL, v.Key)
	case result.Error:
		_, err = q.ExecContext(ctx,
			"INSERT INTO error_results (code_id, ord, ename, evalue, traceback) VALUES (?, ?, ?, ?, ?)",
			codeID, v.Order, v.EName, v.EValue, v.Traceback)
	default:
		return fmt.Errorf("unsupported result type %T", r)
	}
	if err != nil {
		return fmt.Errorf("insert %s result: %w", r.Kind(), err)
	}
	return nil
}

// SaveFile stores raw under the block's artifact prefix and records it as an
// Image result.
func (s *Store) SaveFile(ctx context.Context, codeID int64, img result.Image, raw []byte) (result.Image, error) {
	stored, err := s.putArtifact(ctx, codeID, img, raw)
	if err != nil {
		return result.Image{}, err
	}
	if err := s.AppendResult(ctx, codeID, stored); err != nil {
		return result.Image{}, err
	}
	return stored, nil
}

// CreateFile downloads img.URL, stores it and records it as an Image result.
func (s *Store) CreateFile(ctx context.Context, codeID int64, img result.Image) (result.Image, error) {
	stored, err := s.materialize(ctx, codeID, img)
	if err != nil {
		return result.Image{}, err
	}
	if err := s.AppendResult(ctx, codeID, stored); err != nil {
		return result.Image{}, err
	}
	return stored, nil
}

// materialize downloads and stores an Image's file when a fetcher and an
// artifact store are configured.
func (s *Store) materialize(ctx context.Context, codeID int64, img result.Image) (result.Image, error) {
	if s.artifacts == nil || s.fetcher == nil || img.URL == "" {
		return img, nil
	}
	data, contentType, err := s.fetcher.Fetch(ctx, img.URL)
	if err != nil {
		return result.Image{}, errors.ArtifactError("download result file").WithCause(err).
			WithContext("url", img.URL).Build()
	}
	if img.Mime == "" || img.Mime == result.MimeImageFilename {
		if contentType != "" {
			img.Mime = contentType
		}
	}
	return s.putArtifact(ctx, codeID, img, data)
}

func (s *Store) putArtifact(ctx context.Context, codeID int64, img result.Image, raw []byte) (result.Image, error) {
	if s.artifacts == nil {
		return img, nil
	}
	key, err := artifact.Key(codeID, img.Name)
	if err != nil {
		return result.Image{}, errors.ArtifactError("build artifact key").WithCause(err).Build()
	}
	if err := s.artifacts.Put(ctx, key, raw, img.Mime); err != nil {
		return result.Image{}, errors.ArtifactError("store result file").WithCause(err).
			WithContext("key", key).Build()
	}
	img.Key = key
	return img, nil
}

// RecordEvaluation replaces the block's results with rs and stamps it as
// evaluated, atomically. Image files are downloaded before the transaction
// opens; a failed download keeps the Image result without a stored file.
func (s *Store) RecordEvaluation(ctx context.Context, codeID int64, rs []result.Result) error {
	prepared := make([]result.Result, 0, len(rs))
	for _, r := range rs {
		if img, ok := r.(result.Image); ok {
			stored, err := s.materialize(ctx, codeID, img)
			if err != nil {
				slog.Warn("Failed to store result file", logfields.CodeID(codeID),
					logfields.URL(img.URL), logfields.Error(err))
				stored = img
			}
			r = stored
		}
		prepared = append(prepared, r)
	}

	ts := s.now().UnixNano()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE code_blocks SET last_evaluated = ? WHERE id = ?", ts, codeID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("code block %d not found", codeID)
		}
		for _, table := range resultTables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE code_id = ?", codeID); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		for _, r := range prepared {
			if err := insertResult(ctx, tx, codeID, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storeErr("record evaluation", err)
	}
	return nil
}

// GetResults returns the block's results in ascending order. Unknown blocks
// have no results.
func (s *Store) GetResults(ctx context.Context, codeID int64) ([]result.Result, error) {
	var out []result.Result

	streams, err := s.db.QueryContext(ctx,
		"SELECT ord, mimetype, data FROM stream_results WHERE code_id = ? ORDER BY ord, id", codeID)
	if err != nil {
		return nil, storeErr("query stream results", err)
	}
	for streams.Next() {
		var r result.Stream
		if err := streams.Scan(&r.Order, &r.Mime, &r.Data); err != nil {
			_ = streams.Close()
			return nil, storeErr("scan stream result", err)
		}
		out = append(out, r)
	}
	if err := closeRows(streams); err != nil {
		return nil, storeErr("iterate stream results", err)
	}

	files, err := s.GetFiles(ctx, codeID)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		out = append(out, f)
	}

	errs, err := s.db.QueryContext(ctx,
		"SELECT ord, ename, evalue, traceback FROM error_results WHERE code_id = ? ORDER BY ord, id", codeID)
	if err != nil {
		return nil, storeErr("query error results", err)
	}
	for errs.Next() {
		var r result.Error
		if err := errs.Scan(&r.Order, &r.EName, &r.EValue, &r.Traceback); err != nil {
			_ = errs.Close()
			return nil, storeErr("scan error result", err)
		}
		out = append(out, r)
	}
	if err := closeRows(errs); err != nil {
		return nil, storeErr("iterate error results", err)
	}

	result.SortByPosition(out)
	return out, nil
}

// GetFiles returns the block's Image results in ascending order.
func (s *Store) GetFiles(ctx context.Context, codeID int64) ([]result.Image, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT ord, mimetype, file_name, url, artifact_key FROM file_results WHERE code_id = ? ORDER BY ord, id",
		codeID)
	if err != nil {
		return nil, storeErr("query file results", err)
	}
	var out []result.Image
	for rows.Next() {
		var r result.Image
		if err := rows.Scan(&r.Order, &r.Mime, &r.Name, &r.URL, &r.Key); err != nil {
			_ = rows.Close()
			return nil, storeErr("scan file result", err)
		}
		out = append(out, r)
	}
	if err := closeRows(rows); err != nil {
		return nil, storeErr("iterate file results", err)
	}
	return out, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	return rows.Close()
}
