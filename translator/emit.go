package translator

import (
	"fmt"
	"strings"
)

// Emit walks a Plan bottom-up and renders it as a single Oracle SQL
// statement. A node whose child is a bare Scan reads the collection
// directly in its own SELECT; any other child is rendered as an inline
// view (see emitFrom). The one exception is a LimitOffset directly over a
// Sort, which adds its OFFSET/FETCH to the Sort's SELECT and ORDER BY.
func Emit(p *Plan) string {
	return emitSelect(p)
}

// emitSelect renders p as a complete, self-contained SELECT statement.
func emitSelect(p *Plan) string {
	switch p.Kind {
	case PlanScan:
		items := defaultSelect(p.Alias)
		return fmt.Sprintf("SELECT %s FROM %s %s", selectList(items), p.Collection, p.Alias)

	case PlanFilter:
		from, alias, items := emitFrom(p.Child)
		return fmt.Sprintf("SELECT %s FROM %s WHERE %s", selectListFor(items, alias), from, p.Predicate)

	case PlanProject:
		from, _, _ := emitFrom(p.Child)
		distinct := ""
		if p.Distinct {
			distinct = "DISTINCT "
		}
		return fmt.Sprintf("SELECT %s%s FROM %s", distinct, selectList(p.Select), from)

	case PlanAggregate:
		from, _, _ := emitFrom(p.Child)
		cols := make([]string, 0, len(p.GroupKeys)+len(p.Aggregates))
		for _, k := range p.GroupKeys {
			cols = append(cols, fmt.Sprintf("%s AS %s", k.Expr, k.Alias))
		}
		for _, a := range p.Aggregates {
			cols = append(cols, fmt.Sprintf("%s AS %s", a.Expr, a.Alias))
		}
		q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), from)
		if p.HasGroupBy && len(p.GroupKeys) > 0 {
			groupExprs := make([]string, 0, len(p.GroupKeys))
			for _, k := range p.GroupKeys {
				groupExprs = append(groupExprs, k.Expr)
			}
			q += " GROUP BY " + strings.Join(groupExprs, ", ")
		}
		return q

	case PlanSort:
		from, _, items := emitFrom(p.Child)
		q := fmt.Sprintf("SELECT %s FROM %s", selectList(items), from)
		if len(p.SortKeys) > 0 {
			q += " ORDER BY " + orderByClause(p.SortKeys)
		}
		return q

	case PlanLimitOffset:
		// A Sort directly underneath shares this SELECT, so ORDER BY,
		// OFFSET and FETCH end up in one statement.
		child := p.Child
		var sortKeys []SortKey
		if child.Kind == PlanSort {
			sortKeys = child.SortKeys
			child = child.Child
		}
		from, _, items := emitFrom(child)
		q := fmt.Sprintf("SELECT %s FROM %s", selectList(items), from)
		if len(sortKeys) > 0 {
			q += " ORDER BY " + orderByClause(sortKeys)
		}
		if p.Offset != nil {
			q += fmt.Sprintf(" OFFSET %d ROWS", *p.Offset)
		}
		if p.Limit != nil {
			if p.Offset == nil {
				q += " OFFSET 0 ROWS"
			}
			q += fmt.Sprintf(" FETCH NEXT %d ROWS ONLY", *p.Limit)
		}
		return q

	case PlanJoin:
		leftFrom, leftAlias, _ := emitFrom(p.Left)
		rightFrom := emitJoinSource(p.Right)
		joinWord := joinKeyword(p.JoinKind)
		items := defaultSelect(leftAlias)
		if p.Left.Kind == PlanProject {
			items = p.Left.Select
		}
		return fmt.Sprintf("SELECT %s FROM %s %s %s ON %s", selectList(items), leftFrom, joinWord, rightFrom, p.JoinOn)

	case PlanUnnest:
		from, alias, items := emitFrom(p.Child)
		joinType := "CROSS JOIN"
		if p.UnnestPreserveNull {
			joinType = "LEFT JOIN"
		}
		jsonTable := fmt.Sprintf(
			"JSON_TABLE(%s.data, '$.%s[*]' COLUMNS (val FORMAT JSON PATH '$')) %s",
			alias, p.UnnestPath, p.UnnestAlias,
		)
		on := ""
		if joinType == "LEFT JOIN" {
			on = " ON 1=1"
		}
		return fmt.Sprintf("SELECT %s FROM %s %s %s%s", selectList(items), from, joinType, jsonTable, on)

	case PlanWindow:
		from, alias, items := emitFrom(p.Child)
		cols := make([]string, 0, len(items)+len(p.WindowOutputs))
		for _, it := range items {
			cols = append(cols, fmt.Sprintf("%s AS %s", it.Expr, it.Alias))
		}
		_ = alias
		for _, w := range p.WindowOutputs {
			cols = append(cols, fmt.Sprintf("%s AS %s", w.Expr, w.Alias))
		}
		return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), from)

	case PlanSetOp:
		parts := make([]string, 0, len(p.Children))
		for _, child := range p.Children {
			parts = append(parts, emitSelect(child))
		}
		sep := " UNION ALL "
		return strings.Join(parts, sep)

	case PlanFacet:
		parts := make([]string, 0, len(p.Facets))
		for _, f := range p.Facets {
			sub := emitSelect(f.Plan)
			valueExpr := fmt.Sprintf("(SELECT JSON_ARRAYAGG(JSON_OBJECT(*) RETURNING CLOB) FROM (%s))", sub)
			parts = append(parts, fmt.Sprintf("'%s' VALUE %s", f.Name, valueExpr))
		}
		return fmt.Sprintf("SELECT JSON_OBJECT(%s) FROM DUAL", strings.Join(parts, ", "))

	default:
		return "SELECT NULL FROM DUAL"
	}
}

// emitFrom renders p's FROM-clause source: either "<collection> <alias>"
// directly for a bare Scan, or "(<subquery>) <alias>" for any other node.
// It also returns the select items
// visible to the caller (for pass-through SELECT * semantics) and the
// alias those items are aliased under.
func emitFrom(p *Plan) (from string, alias string, items []SelectItem) {
	switch p.Kind {
	case PlanScan:
		return fmt.Sprintf("%s %s", p.Collection, p.Alias), p.Alias, defaultSelect(p.Alias)
	case PlanProject:
		inner := emitSelect(p)
		a := "v"
		return fmt.Sprintf("(%s) %s", inner, a), a, reAliasOnly(p.Select, a)
	default:
		inner := emitSelect(p)
		a := "v"
		if (p.Kind == PlanAggregate || p.Kind == PlanWindow) && p.OutAlias != "" {
			// Match the alias field compilation baked into any
			// already-compiled fragments that reference this node's
			// output columns (see Plan.OutAlias).
			a = p.OutAlias
		}
		items := defaultSelect(a)
		if hasProjectedShape(p) {
			items = reAliasOnly(projectedItems(p), a)
		}
		return fmt.Sprintf("(%s) %s", inner, a), a, items
	}
}

// projectedItems reports the output columns of a plan node that is not a
// Scan or Project but still has a fixed output shape (Aggregate, Window).
func projectedItems(p *Plan) []SelectItem {
	switch p.Kind {
	case PlanAggregate:
		out := make([]SelectItem, 0, len(p.GroupKeys)+len(p.Aggregates))
		out = append(out, p.GroupKeys...)
		out = append(out, p.Aggregates...)
		return out
	case PlanWindow:
		_, _, inner := emitFrom(p.Child)
		out := make([]SelectItem, 0, len(inner)+len(p.WindowOutputs))
		out = append(out, inner...)
		for _, w := range p.WindowOutputs {
			out = append(out, SelectItem{Alias: w.Alias, Expr: w.Expr})
		}
		return out
	default:
		return nil
	}
}

func hasProjectedShape(p *Plan) bool {
	return p.Kind == PlanAggregate || p.Kind == PlanWindow
}

// reAliasOnly rewrites each item's Expr to "<alias>.<Alias>" so a
// wrapping query can reference a subquery's output columns by name
// rather than re-deriving the original expression.
func reAliasOnly(items []SelectItem, alias string) []SelectItem {
	out := make([]SelectItem, len(items))
	for i, it := range items {
		out[i] = SelectItem{Alias: it.Alias, Expr: alias + "." + it.Alias}
	}
	return out
}

func emitJoinSource(p *Plan) string {
	if p.Kind == PlanScan {
		return fmt.Sprintf("%s %s", p.Collection, p.Alias)
	}
	return fmt.Sprintf("(%s) %s", emitSelect(p), p.RightName)
}

func joinKeyword(k JoinKind) string {
	switch k {
	case JoinInner:
		return "JOIN"
	case JoinLeft:
		return "LEFT JOIN"
	case JoinLateral:
		return "CROSS JOIN LATERAL"
	default:
		return "JOIN"
	}
}

func selectList(items []SelectItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%s AS %s", it.Expr, it.Alias))
	}
	return strings.Join(parts, ", ")
}

// selectListFor renders items exactly as selectList does; alias is not
// used, so Filter passes through the child's own expressions (for a Scan,
// "<alias>.id"/"<alias>.data") unchanged.
func selectListFor(items []SelectItem, alias string) string {
	_ = alias
	return selectList(items)
}

func orderByClause(keys []SortKey) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		s := k.Expr
		if k.Desc {
			s += " DESC"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}
