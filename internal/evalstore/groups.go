package evalstore

import (
	"context"
	"fmt"
)

// UnevaluatedGroups returns, for every source with at least one unevaluated
// block, the source's full ordered block list, plus every recorded reference.
// Notebook sources and notebook-platform blocks are excluded.
func (s *Store) UnevaluatedGroups(ctx context.Context) ([]Group, []Reference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT s.id, s.path, s.filetype, s.permalink, s.fingerprint
		FROM sources s JOIN code_blocks c ON c.src_id = s.id
		WHERE c.last_evaluated IS NULL AND c.platform <> ? AND s.filetype <> ?
		ORDER BY s.path`, PlatformNotebook, PlatformNotebook)
	if err != nil {
		return nil, nil, storeErr("query unevaluated sources", err)
	}
	var sources []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.ID, &src.Path, &src.FileType, &src.Permalink, &src.Fingerprint); err != nil {
			_ = rows.Close()
			return nil, nil, storeErr("scan source", err)
		}
		sources = append(sources, src)
	}
	if err := closeRows(rows); err != nil {
		return nil, nil, storeErr("iterate unevaluated sources", err)
	}

	groups := make([]Group, 0, len(sources))
	for _, src := range sources {
		blocks, err := queryBlocks(ctx, s.db,
			"WHERE c.src_id = ? AND c.platform <> ? ORDER BY c.ord", src.ID, PlatformNotebook)
		if err != nil {
			return nil, nil, storeErr(fmt.Sprintf("list blocks of %s", src.Path), err)
		}
		groups = append(groups, Group{Source: src, Blocks: blocks})
	}

	refs, err := listReferences(ctx, s.db)
	if err != nil {
		return nil, nil, storeErr("list references", err)
	}
	return groups, refs, nil
}
