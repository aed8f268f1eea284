package translator

import (
	"fmt"
	"strings"

	"github.com/squall-chua/mongora"
)

// compilePredicate lowers a mongora.Predicate (the $match query-predicate
// language, distinct from the general expression language) to a boolean
// SQL fragment.
func compilePredicate(c ctx, p mongora.Predicate) (string, error) {
	switch v := p.(type) {
	case nil:
		return "1=1", nil
	case mongora.PredAnd:
		return joinPredicates(c, v.Clauses, "AND")
	case mongora.PredOr:
		return joinPredicates(c, v.Clauses, "OR")
	case mongora.PredNor:
		inner, err := joinPredicates(c, v.Clauses, "OR")
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case mongora.PredNot:
		inner, err := compileFieldPredicateInner(c, v.Field, v.Inner)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case mongora.PredCmp:
		return compileFieldCmp(c, v)
	case mongora.PredIn:
		return compilePredIn(c, v)
	case mongora.PredExists:
		return compilePredExists(c, v)
	case mongora.PredType:
		return compilePredType(c, v)
	case mongora.PredRegex:
		opts := ""
		if v.Options != "" {
			opts = fmt.Sprintf(", '%s'", v.Options)
		}
		fieldSQL, _, err := compileFieldRef(c, v.Field)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("REGEXP_LIKE(%s, '%s'%s)", fieldSQL, strings.ReplaceAll(v.Pattern, "'", "''"), opts), nil
	case mongora.PredMod:
		fieldSQL, _, err := compileFieldRef(c.withNumericHint(true), v.Field)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("MOD(%s, %d) = %d", fieldSQL, v.Divisor, v.Remainder), nil
	case mongora.PredSize:
		sizeSQL, err := compileFieldSizeOf(c, v.Field)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %d", sizeSQL, v.N), nil
	case mongora.PredAll:
		return compilePredAll(c, v)
	case mongora.PredElemMatch:
		return compilePredElemMatch(c, v)
	case mongora.PredExpr:
		sql, _, err := compileExpr(c, v.Expr)
		return sql, err
	default:
		return "", fmt.Errorf("mongora: unrecognized predicate node %T", p)
	}
}

func joinPredicates(c ctx, clauses []mongora.Predicate, op string) (string, error) {
	parts := make([]string, 0, len(clauses))
	for _, cl := range clauses {
		sql, err := compilePredicate(c, cl)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")", nil
}

// compileFieldPredicateInner compiles a field-scoped sub-predicate for
// $not, where Inner may itself be a single-clause PredAnd wrapping the
// original operator document.
func compileFieldPredicateInner(c ctx, field string, inner mongora.Predicate) (string, error) {
	return compilePredicate(c, inner)
}

func compileFieldCmp(c ctx, v mongora.PredCmp) (string, error) {
	lit, isLit := v.Value.(mongora.Literal)
	numericHint := isLit && isNumericLiteral(lit.Value)
	fieldSQL, _, err := compileFieldRef(c.withNumericHint(numericHint), v.Field)
	if err != nil {
		return "", err
	}
	if isLit && lit.Value == nil {
		switch v.Op {
		case "$eq":
			return fieldSQL + " IS NULL", nil
		case "$ne":
			return fieldSQL + " IS NOT NULL", nil
		}
	}
	valSQL, _, err := compileExpr(c.withNumericHint(numericHint), v.Value)
	if err != nil {
		return "", err
	}
	op := map[string]string{"$eq": "=", "$ne": "<>", "$gt": ">", "$gte": ">=", "$lt": "<", "$lte": "<="}[v.Op]
	return fmt.Sprintf("%s %s %s", fieldSQL, op, valSQL), nil
}

func compilePredIn(c ctx, v mongora.PredIn) (string, error) {
	allNumeric := true
	for _, val := range v.Values {
		lit, ok := val.(mongora.Literal)
		if !ok || !isNumericLiteral(lit.Value) {
			allNumeric = false
			break
		}
	}
	fieldSQL, _, err := compileFieldRef(c.withNumericHint(allNumeric), v.Field)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(v.Values))
	for _, val := range v.Values {
		sql, _, err := compileExpr(c.withNumericHint(allNumeric), val)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	op := "IN"
	if v.Negate {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", fieldSQL, op, strings.Join(parts, ", ")), nil
}

func compilePredExists(c ctx, v mongora.PredExists) (string, error) {
	path := v.Field
	existsSQL := fmt.Sprintf("JSON_EXISTS(%s, '$.%s')", c.data(), path)
	if v.Exists {
		return existsSQL, nil
	}
	return "NOT " + existsSQL, nil
}

func compilePredType(c ctx, v mongora.PredType) (string, error) {
	typeofSQL, _, err := compileTypeOf(c, []mongora.Expression{mongora.FieldRef{Path: v.Field}})
	if err != nil {
		return "", err
	}
	valSQL, _, err := compileExpr(c, v.Type)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s) = %s", typeofSQL, valSQL), nil
}

func compileFieldSizeOf(c ctx, field string) (string, error) {
	if alias, rest, ok := resolveField(c, field); ok {
		return fmt.Sprintf("JSON_VALUE(%s, '$%s.size()' RETURNING NUMBER)", alias, dotted(rest)), nil
	}
	return fmt.Sprintf("JSON_VALUE(%s, '$.%s.size()' RETURNING NUMBER)", c.data(), field), nil
}

func compilePredAll(c ctx, v mongora.PredAll) (string, error) {
	parts := make([]string, 0, len(v.Values))
	for _, val := range v.Values {
		valSQL, _, err := compileExpr(c, val)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("JSON_EXISTS(%s, '$.%s?(@ == %s)')", c.data(), v.Field, valSQL))
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

func compilePredElemMatch(c ctx, v mongora.PredElemMatch) (string, error) {
	elemAlias := c.state.nextAlias("elem")
	elemCtx := c.withDataExpr(elemAlias + ".val")
	innerSQL, err := compilePredicate(elemCtx, v.Sub)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM JSON_TABLE(%s, '$.%s[*]' COLUMNS (val FORMAT JSON PATH '$')) %s WHERE %s)",
		c.data(), v.Field, elemAlias, innerSQL,
	), nil
}
