package executor

import (
	"sort"

	"github.com/juju/errors"
	"github.com/zjuerme/MiniSQL/catalog"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/logger"
	"github.com/zjuerme/MiniSQL/record"
)

// IndexScanPlan names the table, the candidate indexes the planner matched,
// and the AND-of-comparisons predicate. NeedFilter asks for a residual
// evaluation of the full predicate over fetched rows.
type IndexScanPlan struct {
	TableName  string
	Indexes    []*catalog.IndexInfo
	Predicate  *Expression
	NeedFilter bool
}

// IndexScanExecutor drives each comparison through an index whose first key
// column matches, intersects the sorted rid sets, and fetches the surviving
// rows from the heap.
type IndexScanExecutor struct {
	catalog *catalog.CatalogManager
	plan    *IndexScanPlan
	txn     *common.Transaction

	resultRows []*record.Row
	resultRids []record.RowId
	cursor     int
}

func NewIndexScanExecutor(cm *catalog.CatalogManager, plan *IndexScanPlan, txn *common.Transaction) *IndexScanExecutor {
	return &IndexScanExecutor{catalog: cm, plan: plan, txn: txn}
}

// Init materializes the result buffer.
func (e *IndexScanExecutor) Init() error {
	tableInfo, err := e.catalog.GetTable(e.plan.TableName)
	if err != nil {
		return errors.Trace(err)
	}

	comparisons, err := flattenPredicate(e.plan.Predicate, nil)
	if err != nil {
		return errors.Trace(err)
	}

	// resultRids stays "unconstrained" until the first index lookup lands.
	var resultRids []record.RowId
	constrained := false

	for _, cmp := range comparisons {
		columnIndex := cmp.Left.ColumnIndex
		indexInfo := e.findIndexFor(columnIndex)
		if indexInfo == nil {
			continue
		}

		keyRow := record.NewRow([]*record.Field{cmp.Right.Value})
		rids, err := indexInfo.Index.ScanKey(keyRow, cmp.Op, e.txn)
		if err != nil {
			return errors.Trace(err)
		}
		sortRids(rids)

		if !constrained {
			resultRids = rids
			constrained = true
			continue
		}
		resultRids = intersectSorted(resultRids, rids)
	}

	if !constrained {
		return errors.Trace(common.ErrNoUsableIndex)
	}
	logger.Debugf("index scan on %s matched %d rids before residual filter",
		e.plan.TableName, len(resultRids))

	e.resultRows = e.resultRows[:0]
	e.resultRids = e.resultRids[:0]
	for _, rid := range resultRids {
		row, err := tableInfo.Heap.GetTuple(rid, e.txn)
		if err != nil {
			return errors.Trace(err)
		}
		if e.plan.NeedFilter {
			keep, err := e.plan.Predicate.EvaluateBool(row)
			if err != nil {
				return errors.Trace(err)
			}
			if !keep {
				continue
			}
		}
		e.resultRows = append(e.resultRows, row)
		e.resultRids = append(e.resultRids, rid)
	}
	e.cursor = 0
	return nil
}

// Next returns buffered rows in rid order; ok is false once exhausted.
func (e *IndexScanExecutor) Next() (*record.Row, record.RowId, bool) {
	if e.cursor >= len(e.resultRids) {
		return nil, record.InvalidRowId, false
	}
	row, rid := e.resultRows[e.cursor], e.resultRids[e.cursor]
	e.cursor++
	return row, rid, true
}

// findIndexFor picks a candidate index whose first key column is the
// comparison's column.
func (e *IndexScanExecutor) findIndexFor(columnIndex uint32) *catalog.IndexInfo {
	for _, indexInfo := range e.plan.Indexes {
		keyCols := indexInfo.Meta.KeyColumnIndices
		if len(keyCols) > 0 && keyCols[0] == columnIndex {
			return indexInfo
		}
	}
	return nil
}

func sortRids(rids []record.RowId) {
	sort.Slice(rids, func(i, j int) bool { return rids[i].Get() < rids[j].Get() })
}

// intersectSorted merges two rid sets ordered by packed form.
func intersectSorted(a, b []record.RowId) []record.RowId {
	out := make([]record.RowId, 0)
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Get() < b[j].Get():
			i++
		case a[i].Get() > b[j].Get():
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
