package executor

import (
	"github.com/juju/errors"
	"github.com/zjuerme/MiniSQL/common"
	"github.com/zjuerme/MiniSQL/record"
)

// ExprKind tags the predicate AST variants.
type ExprKind uint8

const (
	ExprAnd ExprKind = iota
	ExprCompare
	ExprColumn
	ExprConstant
)

// Expression is the predicate AST: AND nodes over comparison leaves, each
// comparing a column against a constant.
type Expression struct {
	Kind  ExprKind
	Left  *Expression
	Right *Expression

	// ExprCompare
	Op common.CompareOp

	// ExprColumn
	ColumnIndex uint32

	// ExprConstant
	Value *record.Field
}

func NewAndExpr(left, right *Expression) *Expression {
	return &Expression{Kind: ExprAnd, Left: left, Right: right}
}

func NewCompareExpr(op common.CompareOp, columnIndex uint32, value *record.Field) *Expression {
	return &Expression{
		Kind:  ExprCompare,
		Op:    op,
		Left:  &Expression{Kind: ExprColumn, ColumnIndex: columnIndex},
		Right: &Expression{Kind: ExprConstant, Value: value},
	}
}

// EvaluateBool applies the predicate to a row.
func (e *Expression) EvaluateBool(row *record.Row) (bool, error) {
	switch e.Kind {
	case ExprAnd:
		left, err := e.Left.EvaluateBool(row)
		if err != nil {
			return false, errors.Trace(err)
		}
		if !left {
			return false, nil
		}
		return e.Right.EvaluateBool(row)
	case ExprCompare:
		cmp := row.GetField(int(e.Left.ColumnIndex)).CompareTo(e.Right.Value)
		switch e.Op {
		case common.CmpEqual:
			return cmp == 0, nil
		case common.CmpNotEqual:
			return cmp != 0, nil
		case common.CmpLess:
			return cmp < 0, nil
		case common.CmpLessEqual:
			return cmp <= 0, nil
		case common.CmpGreater:
			return cmp > 0, nil
		case common.CmpGreaterEqual:
			return cmp >= 0, nil
		}
		return false, errors.Trace(common.ErrInvalidPredicate)
	default:
		return false, errors.Trace(common.ErrInvalidPredicate)
	}
}

// flattenPredicate collects the comparison leaves of an AND tree. Any other
// internal node is a predicate shape error.
func flattenPredicate(e *Expression, out []*Expression) ([]*Expression, error) {
	switch e.Kind {
	case ExprAnd:
		var err error
		out, err = flattenPredicate(e.Left, out)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return flattenPredicate(e.Right, out)
	case ExprCompare:
		return append(out, e), nil
	default:
		return nil, errors.Trace(common.ErrInvalidPredicate)
	}
}
