package evalstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// PermalinkSeparator joins block contents in a source-level permalink so the
// decoded program prints a rule between blocks.
var PermalinkSeparator = "\npretty_print(html('<br/><hr/><br/>'))\n#" + strings.Repeat("-", 40) + "\n"

// EncodePermalink compresses content and encodes it URL-safe.
func EncodePermalink(content string) (string, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write([]byte(content)); err != nil {
		return "", fmt.Errorf("compress permalink: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("compress permalink: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodePermalink reverses EncodePermalink.
func DecodePermalink(link string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(link)
	if err != nil {
		return "", fmt.Errorf("decode permalink: %w", err)
	}
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decompress permalink: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decompress permalink: %w", err)
	}
	return string(out), nil
}

// ComputePermalink stores a permalink on the source built from all of its
// blocks in order, and one per block from its own content. Sources without
// blocks are left untouched and yield "".
func (s *Store) ComputePermalink(ctx context.Context, path string) (string, error) {
	var link string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		src, found, err := sourceByPath(ctx, tx, path)
		if err != nil || !found {
			return err
		}
		blocks, err := queryBlocks(ctx, tx, "WHERE c.src_id = ? ORDER BY c.ord", src.ID)
		if err != nil || len(blocks) == 0 {
			return err
		}

		contents := make([]string, 0, len(blocks))
		for _, b := range blocks {
			contents = append(contents, b.Content)
			blockLink, err := EncodePermalink(b.Content)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"UPDATE code_blocks SET permalink = ? WHERE id = ?", blockLink, b.ID); err != nil {
				return fmt.Errorf("update block permalink: %w", err)
			}
		}
		link, err = EncodePermalink(strings.Join(contents, PermalinkSeparator))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "UPDATE sources SET permalink = ? WHERE id = ?", link, src.ID)
		return err
	})
	if err != nil {
		return "", storeErr("compute permalink", err)
	}
	return link, nil
}
