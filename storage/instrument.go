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

package storage

import (
	"context"

	"m4o.io/osmrecurse/index"
	"m4o.io/osmrecurse/internal/metrics"
	"m4o.io/osmrecurse/model"
)

// Instrument wraps s so that every scan is counted in m.
func Instrument(s Store, m *metrics.Metrics) Store {
	if m == nil {
		return s
	}

	return instrumented{Store: s, m: m}
}

type instrumented struct {
	Store
	m *metrics.Metrics
}

func (i instrumented) Nodes() Table[model.NodeSkeleton] {
	return instrumentedTable[model.NodeSkeleton]{Table: i.Store.Nodes(), name: Nodes.String(), m: i.m}
}

func (i instrumented) Ways() Table[model.WaySkeleton] {
	return instrumentedTable[model.WaySkeleton]{Table: i.Store.Ways(), name: Ways.String(), m: i.m}
}

func (i instrumented) Relations() Table[model.RelationSkeleton] {
	return instrumentedTable[model.RelationSkeleton]{Table: i.Store.Relations(), name: Relations.String(), m: i.m}
}

func (i instrumented) AtticNodes() Table[model.Attic[model.NodeSkeleton]] {
	return instrumentedTable[model.Attic[model.NodeSkeleton]]{Table: i.Store.AtticNodes(), name: AtticNodes.String(), m: i.m}
}

func (i instrumented) AtticWays() Table[model.Attic[model.WaySkeleton]] {
	return instrumentedTable[model.Attic[model.WaySkeleton]]{Table: i.Store.AtticWays(), name: AtticWays.String(), m: i.m}
}

type instrumentedTable[T model.Item] struct {
	Table[T]
	name string
	m    *metrics.Metrics
}

func (t instrumentedTable[T]) Scan(ctx context.Context, sel Selection, visit Visitor[T]) error {
	t.m.Scans.WithLabelValues(t.name).Inc()
	rows := t.m.RowsScanned.WithLabelValues(t.name)

	return t.Table.Scan(ctx, sel, func(idx index.Index, item T) error {
		rows.Inc()
		return visit(idx, item)
	})
}
