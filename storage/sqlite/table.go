// Copyright 2025 the original author or authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"m4o.io/osmrecurse/internal/codec"
	"m4o.io/osmrecurse/model"
	"m4o.io/osmrecurse/storage"
)

type table[T model.Item] struct {
	db    *sql.DB
	name  string
	codec codec.Codec[T]
	attic bool
}

func (t *table[T]) order() string {
	if t.attic {
		return " ORDER BY idx, id, expires"
	}

	return " ORDER BY idx, id"
}

func (t *table[T]) Scan(ctx context.Context, sel storage.Selection, visit storage.Visitor[T]) error {
	base := "SELECT idx, body FROM " + t.name

	switch {
	case sel.IsEverything():
		return t.query(ctx, sel, visit, base+t.order())
	case len(sel.RangeList()) > 0:
		ranges := sel.RangeList()
		conds := make([]string, len(ranges))
		args := make([]any, 0, 2*len(ranges))

		for i, r := range ranges {
			conds[i] = "idx BETWEEN ? AND ?"
			args = append(args, toColumn(r.Lo), toColumn(r.Hi))
		}

		return t.query(ctx, sel, visit, base+" WHERE "+strings.Join(conds, " OR ")+t.order(), args...)
	default:
		indices := sel.Indices()

		for start := 0; start < len(indices); start += maxParams {
			chunk := indices[start:min(start+maxParams, len(indices))]
			args := make([]any, len(chunk))

			for i, idx := range chunk {
				args[i] = toColumn(idx)
			}

			q := base + " WHERE idx IN (" + placeholders(len(chunk)) + ")" + t.order()
			if err := t.query(ctx, sel, visit, q, args...); err != nil {
				return err
			}
		}

		return nil
	}
}

func (t *table[T]) query(ctx context.Context, sel storage.Selection, visit storage.Visitor[T], q string, args ...any) error {
	rows, err := t.db.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("scan %s: %w", t.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			col  int64
			body []byte
		)

		if err := rows.Scan(&col, &body); err != nil {
			return fmt.Errorf("scan %s: %w", t.name, err)
		}

		idx := fromColumn(col)
		if !sel.Contains(idx) {
			continue
		}

		item, err := t.codec.Decode(body)
		if err != nil {
			return fmt.Errorf("scan %s: %w", t.name, err)
		}

		if err := visit(idx, item); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", t.name, err)
	}

	return nil
}

func (t *table[T]) write(ctx context.Context, tx *sql.Tx, entries []storage.Entry[T]) error {
	if len(entries) == 0 {
		return nil
	}

	q := "INSERT OR REPLACE INTO " + t.name + "(idx, id, body) VALUES (?, ?, ?)"
	if t.attic {
		q = "INSERT OR REPLACE INTO " + t.name + "(idx, id, expires, body) VALUES (?, ?, ?, ?)"
	}

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("write %s: %w", t.name, err)
	}
	defer stmt.Close()

	for _, e := range entries {
		args := []any{toColumn(e.Index), int64(e.Item.GetID())}
		if t.attic {
			args = append(args, int64(e.Item.GetTimestamp()))
		}

		args = append(args, t.codec.Append(nil, e.Item))

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("write %s row %d: %w", t.name, e.Item.GetID(), err)
		}
	}

	return nil
}

var _ storage.Table[model.NodeSkeleton] = (*table[model.NodeSkeleton])(nil)
