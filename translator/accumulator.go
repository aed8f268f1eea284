package translator

import (
	"fmt"
	"strings"

	"github.com/squall-chua/mongora"
)

// compileAccumulator lowers one $group accumulator expression to a SQL
// aggregate fragment. Supported accumulators: $sum, $avg, $min, $max,
// $count ($sum:1), $first, $last, $push, $addToSet.
// $first/$last consumed by a preceding $sort are compiled separately by
// compileKeepFirstLast (see stages.go's group fusion).
func compileAccumulator(c ctx, e mongora.Expression) (string, error) {
	o, ok := e.(mongora.OpCall)
	if !ok {
		return "", &mongora.ExpressionError{StageIndex: c.stageErr(), Operator: "$group", Detail: "accumulator output must be an operator call"}
	}
	gc := c.withScope(scopeGroupAggregate)
	switch o.Op {
	case "$sum":
		if len(o.Args) != 1 {
			return "", mongora.OperatorArityError(c.stageErr(), "$sum", len(o.Args), 1)
		}
		arg, _, err := compileExpr(gc.withNumericHint(true), o.Args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("SUM(%s)", arg), nil
	case "$avg":
		arg, _, err := compileExpr(gc.withNumericHint(true), o.Args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("AVG(%s)", arg), nil
	case "$min":
		arg, _, err := compileExpr(gc, o.Args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("MIN(%s)", arg), nil
	case "$max":
		arg, _, err := compileExpr(gc, o.Args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("MAX(%s)", arg), nil
	case "$first":
		arg, _, err := compileExpr(gc, o.Args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("MIN(%s) KEEP (DENSE_RANK FIRST ORDER BY %s.id)", arg, gc.rowAlias), nil
	case "$last":
		arg, _, err := compileExpr(gc, o.Args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("MIN(%s) KEEP (DENSE_RANK LAST ORDER BY %s.id)", arg, gc.rowAlias), nil
	case "$push":
		arg, _, err := compileExpr(gc, o.Args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("JSON_ARRAYAGG(%s)", arg), nil
	case "$addToSet":
		arg, _, err := compileExpr(gc, o.Args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("JSON_ARRAYAGG(DISTINCT %s)", arg), nil
	default:
		return "", mongora.UnknownOperator(c.stageErr(), o.Op)
	}
}

// isCountSum1 reports whether e is {$sum: 1}, MongoDB's idiom for
// COUNT(*), compiled directly to COUNT(*) rather than SUM(1).
func isCountSum1(e mongora.Expression) bool {
	o, ok := e.(mongora.OpCall)
	if !ok || o.Op != "$sum" || len(o.Args) != 1 {
		return false
	}
	lit, ok := o.Args[0].(mongora.Literal)
	if !ok {
		return false
	}
	switch v := lit.Value.(type) {
	case int32:
		return v == 1
	case int64:
		return v == 1
	case float64:
		return v == 1
	}
	return false
}

// compileKeepFirstLast rewrites a $first/$last accumulator into
// MAX(...) KEEP (DENSE_RANK FIRST|LAST ORDER BY <sort-keys>),
// consuming the preceding $sort's keys as the tie-break order instead of
// the synthetic row order compileAccumulator falls back to.
func compileKeepFirstLast(c ctx, e mongora.Expression, sortKeys []mongora.SortKey) (string, error) {
	o, ok := e.(mongora.OpCall)
	if !ok || len(o.Args) != 1 {
		return "", &mongora.ExpressionError{StageIndex: c.stageErr(), Operator: "$group", Detail: "malformed $first/$last"}
	}
	gc := c.withScope(scopeGroupAggregate)
	arg, _, err := compileExpr(gc, o.Args[0])
	if err != nil {
		return "", err
	}
	orderBy, err := compileOrderByKeys(gc, sortKeys)
	if err != nil {
		return "", err
	}
	direction := "FIRST"
	fn := "MAX"
	if o.Op == "$last" {
		direction = "LAST"
	}
	return fmt.Sprintf("%s(%s) KEEP (DENSE_RANK %s ORDER BY %s)", fn, arg, direction, orderBy), nil
}

func compileOrderByKeys(c ctx, keys []mongora.SortKey) (string, error) {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		sql, _, err := compileFieldRef(c, k.Field)
		if err != nil {
			return "", err
		}
		if k.Desc {
			sql += " DESC"
		}
		parts = append(parts, sql)
	}
	return strings.Join(parts, ", "), nil
}
