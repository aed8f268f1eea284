package translator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/squall-chua/mongora"
)

// compileExpr lowers a mongora.Expression to a SQL fragment under ctx,
// returning a typed (sql, isNumeric) pair and threading the explicit ctx
// this compiler needs for path resolution and bind-variable numbering.
func compileExpr(c ctx, e mongora.Expression) (string, bool, error) {
	switch v := e.(type) {
	case nil:
		return "NULL", false, nil
	case mongora.Literal:
		return renderLiteral(c, v.Value), isNumericLiteral(v.Value), nil
	case mongora.FieldRef:
		return compileFieldRef(c, v.Path)
	case mongora.VarRef:
		return compileVarRef(c, v)
	case mongora.OpCall:
		return compileOpCall(c, v)
	default:
		return "", false, fmt.Errorf("mongora: unrecognized expression node %T", e)
	}
}

func isNumericLiteral(v interface{}) bool {
	switch v.(type) {
	case int32, int64, float64, float32, int:
		return true
	}
	return false
}

// renderLiteral renders a scalar value either inline or as a bind
// placeholder, per Settings.BindMode.
func renderLiteral(c ctx, v interface{}) string {
	if c.state.settings.BindMode == BindPlaceholders {
		c.state.bindCounter++
		c.state.params = append(c.state.params, v)
		return ":" + strconv.Itoa(c.state.bindCounter)
	}
	return sqlLiteral(v)
}

func sqlLiteral(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	case bool:
		if t {
			return "1"
		}
		return "0"
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	default:
		return fmt.Sprintf("'%v'", t)
	}
}

// resolveField splits a dotted path into its binding prefix (if any
// unwound/lookup alias matches) and the remainder path beneath it.
func resolveField(c ctx, path string) (alias, rest string, bound bool) {
	head := path
	if i := strings.IndexByte(path, '.'); i >= 0 {
		head = path[:i]
	}
	if b, ok := c.bindings["."+head]; ok {
		rest = strings.TrimPrefix(path, head)
		rest = strings.TrimPrefix(rest, ".")
		return b, rest, true
	}
	return "", path, false
}

// compileFieldRef implements the path-extraction policy: scalar reads
// use JSON_VALUE (with RETURNING NUMBER under a numeric hint or a
// declared Schema numeric kind), object/array reads use JSON_QUERY.
func compileFieldRef(c ctx, path string) (string, bool, error) {
	// A shape-changing stage ($group, $setWindowFields) rebinds field
	// names directly to its own output columns; these take priority
	// over re-deriving the field from the original JSON document.
	if sqlExpr, ok := c.bindings["#"+path]; ok {
		return sqlExpr, c.numericHint, nil
	}
	if alias, rest, ok := resolveField(c, path); ok {
		if rest == "" {
			return alias, c.numericHint, nil
		}
		numeric := c.numericHint || c.state.settings.Schema.Lookup(path) == mongora.KindNumber
		return jsonExtract(c.withNumericHint(numeric), alias, rest), numeric, nil
	}
	if path == "_id" {
		return c.rowAlias + ".id", false, nil
	}
	kind := c.state.settings.Schema.Lookup(path)
	switch kind {
	case mongora.KindObject, mongora.KindArray:
		return fmt.Sprintf("JSON_QUERY(%s, '$.%s')", c.data(), path), false, nil
	default:
		numeric := c.numericHint || kind == mongora.KindNumber
		return jsonExtract(c.withNumericHint(numeric), c.data(), path), numeric, nil
	}
}

func jsonExtract(c ctx, dataExpr, path string) string {
	if c.numericHint {
		return fmt.Sprintf("JSON_VALUE(%s, '$.%s' RETURNING NUMBER)", dataExpr, path)
	}
	return fmt.Sprintf("JSON_VALUE(%s, '$.%s')", dataExpr, path)
}

// $redact's $cond branches evaluate to one of these three system
// variables; compileVarRef renders them as sentinel string literals so
// applyRedact can compare the compiled $cond expression against a known
// constant rather than re-deriving the row's keep/prune decision.
const (
	redactKeepSQL    = "'$$KEEP'"
	redactPruneSQL   = "'$$PRUNE'"
	redactDescendSQL = "'$$DESCEND'"
)

// compileVarRef resolves a "$$name[.path]" reference against ctx's
// bindings (populated when entering $filter/$map's "as" scope), or the
// $$ROOT/$$CURRENT aliases which simply mean the active row, or the
// $$KEEP/$$PRUNE/$$DESCEND $redact sentinels.
func compileVarRef(c ctx, v mongora.VarRef) (string, bool, error) {
	if v.Var == "ROOT" || v.Var == "CURRENT" {
		if v.Path == "" {
			return c.data(), false, nil
		}
		return compileFieldRef(c, v.Path)
	}
	switch v.Var {
	case "KEEP":
		return redactKeepSQL, false, nil
	case "PRUNE":
		return redactPruneSQL, false, nil
	case "DESCEND":
		return redactDescendSQL, false, nil
	}
	if sqlExpr, ok := c.bindings["$"+v.Var]; ok {
		if v.Path == "" {
			return sqlExpr, c.numericHint, nil
		}
		return jsonExtract(c, sqlExpr, v.Path), c.numericHint, nil
	}
	return "", false, &mongora.ExpressionError{StageIndex: c.stageErr(), Operator: "$$" + v.Var, Detail: "unbound variable"}
}

// compileOpCall is the operator dispatch table, one case group per
// operator family.
func compileOpCall(c ctx, o mongora.OpCall) (string, bool, error) {
	switch o.Op {
	// ---- arithmetic ----
	case "$add":
		return joinBinaryNumeric(c, o.Args, "+")
	case "$subtract":
		return joinBinaryNumeric(c, o.Args, "-")
	case "$multiply":
		return joinBinaryNumeric(c, o.Args, "*")
	case "$divide":
		return joinBinaryNumeric(c, o.Args, "/")
	case "$mod":
		return funcCallNumeric(c, "MOD", o.Args)
	case "$abs":
		return funcCallNumeric(c, "ABS", o.Args)
	case "$ceil":
		return funcCallNumeric(c, "CEIL", o.Args)
	case "$floor":
		return funcCallNumeric(c, "FLOOR", o.Args)
	case "$round":
		return funcCallNumeric(c, "ROUND", o.Args)
	case "$trunc":
		return funcCallNumeric(c, "TRUNC", o.Args)
	case "$sqrt":
		return funcCallNumeric(c, "SQRT", o.Args)
	case "$pow":
		return funcCallNumeric(c, "POWER", o.Args)
	case "$ln":
		return funcCallNumeric(c, "LN", o.Args)

	// ---- comparison ----
	case "$eq":
		return compileCmp(c, o.Args, "=")
	case "$ne":
		return compileCmp(c, o.Args, "<>")
	case "$gt":
		return compileCmp(c, o.Args, ">")
	case "$gte":
		return compileCmp(c, o.Args, ">=")
	case "$lt":
		return compileCmp(c, o.Args, "<")
	case "$lte":
		return compileCmp(c, o.Args, "<=")

	// ---- boolean logic ----
	case "$and":
		return joinBoolean(c, o.Args, "AND")
	case "$or":
		return joinBoolean(c, o.Args, "OR")
	case "$not":
		if len(o.Args) != 1 {
			return "", false, mongora.OperatorArityError(c.stageErr(), "$not", len(o.Args), 1)
		}
		inner, _, err := compileExpr(c, o.Args[0])
		if err != nil {
			return "", false, err
		}
		return "(NOT " + inner + ")", false, nil

	// ---- conditional ----
	case "$cond":
		return compileCond(c, o)
	case "$ifNull":
		if len(o.Args) < 2 {
			return "", false, mongora.OperatorArityError(c.stageErr(), "$ifNull", len(o.Args), 2)
		}
		a, numeric, err := compileExpr(c, o.Args[0])
		if err != nil {
			return "", false, err
		}
		b, _, err := compileExpr(c, o.Args[1])
		if err != nil {
			return "", false, err
		}
		return fmt.Sprintf("NVL(%s, %s)", a, b), numeric, nil
	case "$switch":
		return compileSwitch(c, o)

	// ---- string ----
	case "$concat":
		return compileConcat(c, o.Args)
	case "$toLower":
		return funcCallString(c, "LOWER", o.Args)
	case "$toUpper":
		return funcCallString(c, "UPPER", o.Args)
	case "$strLenCP":
		return funcCallNumericFromString(c, "LENGTH", o.Args)
	case "$trim":
		return funcCallString(c, "TRIM", o.Args)
	case "$ltrim":
		return funcCallString(c, "LTRIM", o.Args)
	case "$rtrim":
		return funcCallString(c, "RTRIM", o.Args)
	case "$substr", "$substrCP":
		return compileSubstr(c, o.Args)
	case "$indexOfCP":
		return compileIndexOf(c, o.Args)
	case "$strcasecmp":
		return compileStrcasecmp(c, o.Args)
	case "$regexMatch":
		return compileRegexMatch(c, o)
	case "$replaceOne":
		return compileReplace(c, o, false)
	case "$replaceAll":
		return compileReplace(c, o, true)

	// ---- date ----
	case "$year":
		return dateExtract(c, o.Args, "YEAR")
	case "$month":
		return dateExtract(c, o.Args, "MONTH")
	case "$dayOfMonth":
		return dateExtract(c, o.Args, "DAY")
	case "$hour":
		return dateExtract(c, o.Args, "HOUR")
	case "$minute":
		return dateExtract(c, o.Args, "MINUTE")
	case "$second":
		return dateExtract(c, o.Args, "SECOND")

	// ---- array ----
	case "$size":
		return compileArraySize(c, o.Args)
	case "$arrayElemAt", "$first", "$last":
		return compileArrayElemAt(c, o)
	case "$isArray":
		return compileIsArray(c, o.Args)
	case "$filter", "$map":
		return compileFilterMap(c, o)
	case "$reduce", "$concatArrays", "$slice":
		sql, err := c.unsupported(o.Op)
		return sql, false, err

	// ---- object ----
	case "$mergeObjects":
		return compileMergeObjects(c, o.Args)
	case "$object":
		return compileObjectLiteral(c, o)
	case "$array":
		return compileArrayLiteral(c, o)

	// ---- type ----
	case "$type":
		return compileTypeOf(c, o.Args)
	case "$toInt", "$toLong":
		return compileToNumber(c, o.Args, true)
	case "$toDouble", "$toDecimal":
		return compileToNumber(c, o.Args, false)
	case "$toString":
		return compileToString(c, o.Args)
	case "$toBool":
		return compileToBool(c, o.Args)

	// ---- accumulators (compiled here; caller enforces $group-only legality) ----
	case "$sum", "$avg", "$min", "$max", "$first", "$last", "$push", "$addToSet":
		return "", false, fmt.Errorf("mongora: accumulator %s must be compiled via compileAccumulator", o.Op)

	// ---- window functions ----
	case "$rank", "$denseRank", "$documentNumber":
		return "", false, fmt.Errorf("mongora: window function %s must be compiled via compileWindowOutput", o.Op)

	default:
		return "", false, mongora.UnknownOperator(c.stageErr(), o.Op)
	}
}

func joinBinaryNumeric(c ctx, args []mongora.Expression, op string) (string, bool, error) {
	if len(args) < 2 {
		return "", false, mongora.OperatorArityError(c.stageErr(), "$"+op, len(args), 2)
	}
	nc := c.withNumericHint(true)
	parts := make([]string, 0, len(args))
	for _, a := range args {
		sql, _, err := compileExpr(nc, a)
		if err != nil {
			return "", false, err
		}
		parts = append(parts, sql)
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")", true, nil
}

func funcCallNumeric(c ctx, fn string, args []mongora.Expression) (string, bool, error) {
	nc := c.withNumericHint(true)
	parts := make([]string, 0, len(args))
	for _, a := range args {
		sql, _, err := compileExpr(nc, a)
		if err != nil {
			return "", false, err
		}
		parts = append(parts, sql)
	}
	return fmt.Sprintf("%s(%s)", fn, strings.Join(parts, ", ")), true, nil
}

func funcCallString(c ctx, fn string, args []mongora.Expression) (string, bool, error) {
	if len(args) != 1 {
		return "", false, mongora.OperatorArityError(c.stageErr(), fn, len(args), 1)
	}
	sql, _, err := compileExpr(c.withNumericHint(false), args[0])
	if err != nil {
		return "", false, err
	}
	return fmt.Sprintf("%s(%s)", fn, sql), false, nil
}

func funcCallNumericFromString(c ctx, fn string, args []mongora.Expression) (string, bool, error) {
	if len(args) != 1 {
		return "", false, mongora.OperatorArityError(c.stageErr(), fn, len(args), 1)
	}
	sql, _, err := compileExpr(c.withNumericHint(false), args[0])
	if err != nil {
		return "", false, err
	}
	return fmt.Sprintf("%s(%s)", fn, sql), true, nil
}

func compileCmp(c ctx, args []mongora.Expression, op string) (string, bool, error) {
	if len(args) != 2 {
		return "", false, mongora.OperatorArityError(c.stageErr(), op, len(args), 2)
	}
	if isNullLiteral(args[1]) {
		lhs, _, err := compileExpr(c, args[0])
		if err != nil {
			return "", false, err
		}
		if op == "=" {
			return lhs + " IS NULL", false, nil
		}
		if op == "<>" {
			return lhs + " IS NOT NULL", false, nil
		}
	}
	lhs, _, err := compileExpr(c, args[0])
	if err != nil {
		return "", false, err
	}
	rhs, _, err := compileExpr(c, args[1])
	if err != nil {
		return "", false, err
	}
	return fmt.Sprintf("%s %s %s", lhs, op, rhs), false, nil
}

func isNullLiteral(e mongora.Expression) bool {
	lit, ok := e.(mongora.Literal)
	return ok && lit.Value == nil
}

func joinBoolean(c ctx, args []mongora.Expression, op string) (string, bool, error) {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		sql, _, err := compileExpr(c, a)
		if err != nil {
			return "", false, err
		}
		parts = append(parts, sql)
	}
	joined := strings.Join(parts, " "+op+" ")
	if op == "OR" && len(parts) > 1 {
		return "(" + joined + ")", false, nil
	}
	return joined, false, nil
}

func compileCond(c ctx, o mongora.OpCall) (string, bool, error) {
	ifE := o.Arg("if")
	thenE := o.Arg("then")
	elseE := o.Arg("else")
	if ifE == nil || thenE == nil || elseE == nil {
		return "", false, &mongora.ExpressionError{StageIndex: c.stageErr(), Operator: "$cond", Detail: "requires if/then/else"}
	}
	ifSQL, _, err := compileExpr(c, ifE)
	if err != nil {
		return "", false, err
	}
	thenSQL, numeric, err := compileExpr(c, thenE)
	if err != nil {
		return "", false, err
	}
	elseSQL, _, err := compileExpr(c, elseE)
	if err != nil {
		return "", false, err
	}
	return fmt.Sprintf("CASE WHEN %s THEN %s ELSE %s END", ifSQL, thenSQL, elseSQL), numeric, nil
}

func compileSwitch(c ctx, o mongora.OpCall) (string, bool, error) {
	branchesE := o.Arg("branches")
	branchesCall, ok := branchesE.(mongora.OpCall)
	if !ok {
		return "", false, &mongora.ExpressionError{StageIndex: c.stageErr(), Operator: "$switch", Detail: "malformed branches"}
	}
	var sb strings.Builder
	sb.WriteString("CASE")
	numeric := false
	for _, br := range branchesCall.Args {
		branch, ok := br.(mongora.OpCall)
		if !ok || len(branch.Args) != 2 {
			return "", false, &mongora.ExpressionError{StageIndex: c.stageErr(), Operator: "$switch", Detail: "malformed branch"}
		}
		caseSQL, _, err := compileExpr(c, branch.Args[0])
		if err != nil {
			return "", false, err
		}
		thenSQL, n, err := compileExpr(c, branch.Args[1])
		if err != nil {
			return "", false, err
		}
		numeric = n
		sb.WriteString(fmt.Sprintf(" WHEN %s THEN %s", caseSQL, thenSQL))
	}
	if def := o.Arg("default"); def != nil {
		defSQL, _, err := compileExpr(c, def)
		if err != nil {
			return "", false, err
		}
		sb.WriteString(" ELSE " + defSQL)
	}
	sb.WriteString(" END")
	return sb.String(), numeric, nil
}

func compileConcat(c ctx, args []mongora.Expression) (string, bool, error) {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		sql, _, err := compileExpr(c.withNumericHint(false), a)
		if err != nil {
			return "", false, err
		}
		parts = append(parts, sql)
	}
	return "(" + strings.Join(parts, " || ") + ")", false, nil
}

func compileSubstr(c ctx, args []mongora.Expression) (string, bool, error) {
	if len(args) != 3 {
		return "", false, mongora.OperatorArityError(c.stageErr(), "$substr", len(args), 3)
	}
	s, _, err := compileExpr(c.withNumericHint(false), args[0])
	if err != nil {
		return "", false, err
	}
	off, _, err := compileExpr(c.withNumericHint(true), args[1])
	if err != nil {
		return "", false, err
	}
	length, _, err := compileExpr(c.withNumericHint(true), args[2])
	if err != nil {
		return "", false, err
	}
	return fmt.Sprintf("SUBSTR(%s, %s + 1, %s)", s, off, length), false, nil
}

func compileIndexOf(c ctx, args []mongora.Expression) (string, bool, error) {
	if len(args) < 2 {
		return "", false, mongora.OperatorArityError(c.stageErr(), "$indexOfCP", len(args), 2)
	}
	s, _, err := compileExpr(c.withNumericHint(false), args[0])
	if err != nil {
		return "", false, err
	}
	sub, _, err := compileExpr(c.withNumericHint(false), args[1])
	if err != nil {
		return "", false, err
	}
	return fmt.Sprintf("(INSTR(%s, %s) - 1)", s, sub), true, nil
}

func compileStrcasecmp(c ctx, args []mongora.Expression) (string, bool, error) {
	if len(args) != 2 {
		return "", false, mongora.OperatorArityError(c.stageErr(), "$strcasecmp", len(args), 2)
	}
	a, _, err := compileExpr(c.withNumericHint(false), args[0])
	if err != nil {
		return "", false, err
	}
	b, _, err := compileExpr(c.withNumericHint(false), args[1])
	if err != nil {
		return "", false, err
	}
	return fmt.Sprintf("(CASE WHEN UPPER(%s) = UPPER(%s) THEN 0 WHEN UPPER(%s) > UPPER(%s) THEN 1 ELSE -1 END)", a, b, a, b), true, nil
}

func compileRegexMatch(c ctx, o mongora.OpCall) (string, bool, error) {
	input := o.Arg("input")
	regex := o.Arg("regex")
	if input == nil || regex == nil {
		return "", false, &mongora.ExpressionError{StageIndex: c.stageErr(), Operator: "$regexMatch", Detail: "requires input and regex"}
	}
	s, _, err := compileExpr(c.withNumericHint(false), input)
	if err != nil {
		return "", false, err
	}
	pattern, _, err := compileExpr(c.withNumericHint(false), regex)
	if err != nil {
		return "", false, err
	}
	return fmt.Sprintf("REGEXP_LIKE(%s, %s)", s, pattern), false, nil
}

func compileReplace(c ctx, o mongora.OpCall, all bool) (string, bool, error) {
	input := o.Arg("input")
	find := o.Arg("find")
	replacement := o.Arg("replacement")
	if input == nil || find == nil || replacement == nil {
		op := "$replaceOne"
		if all {
			op = "$replaceAll"
		}
		return "", false, &mongora.ExpressionError{StageIndex: c.stageErr(), Operator: op, Detail: "requires input, find, and replacement"}
	}
	s, _, err := compileExpr(c.withNumericHint(false), input)
	if err != nil {
		return "", false, err
	}
	f, _, err := compileExpr(c.withNumericHint(false), find)
	if err != nil {
		return "", false, err
	}
	r, _, err := compileExpr(c.withNumericHint(false), replacement)
	if err != nil {
		return "", false, err
	}
	if all {
		return fmt.Sprintf("REGEXP_REPLACE(%s, %s, %s)", s, f, r), false, nil
	}
	return fmt.Sprintf("REGEXP_REPLACE(%s, %s, %s, 1, 1)", s, f, r), false, nil
}

func dateExtract(c ctx, args []mongora.Expression, field string) (string, bool, error) {
	if len(args) != 1 {
		return "", false, mongora.OperatorArityError(c.stageErr(), "$"+strings.ToLower(field), len(args), 1)
	}
	s, _, err := compileExpr(c.withNumericHint(false), args[0])
	if err != nil {
		return "", false, err
	}
	return fmt.Sprintf("EXTRACT(%s FROM TO_TIMESTAMP(%s, 'YYYY-MM-DD\"T\"HH24:MI:SS'))", field, s), true, nil
}

func compileArraySize(c ctx, args []mongora.Expression) (string, bool, error) {
	if len(args) != 1 {
		return "", false, mongora.OperatorArityError(c.stageErr(), "$size", len(args), 1)
	}
	fr, ok := args[0].(mongora.FieldRef)
	if !ok {
		sql, err := c.unsupported("$size")
		return sql, false, err
	}
	if alias, rest, ok := resolveField(c, fr.Path); ok {
		return fmt.Sprintf("JSON_VALUE(%s, '$%s.size()' RETURNING NUMBER)", alias, dotted(rest)), true, nil
	}
	return fmt.Sprintf("JSON_VALUE(%s, '$.%s.size()' RETURNING NUMBER)", c.data(), fr.Path), true, nil
}

func dotted(rest string) string {
	if rest == "" {
		return ""
	}
	return "." + rest
}

func compileArrayElemAt(c ctx, o mongora.OpCall) (string, bool, error) {
	var arrExpr mongora.Expression
	var idx int64
	switch o.Op {
	case "$first":
		if len(o.Args) != 1 {
			return "", false, mongora.OperatorArityError(c.stageErr(), "$first", len(o.Args), 1)
		}
		arrExpr, idx = o.Args[0], 0
	case "$last":
		if len(o.Args) != 1 {
			return "", false, mongora.OperatorArityError(c.stageErr(), "$last", len(o.Args), 1)
		}
		arrExpr, idx = o.Args[0], -1
	default:
		if len(o.Args) != 2 {
			return "", false, mongora.OperatorArityError(c.stageErr(), "$arrayElemAt", len(o.Args), 2)
		}
		lit, ok := o.Args[1].(mongora.Literal)
		if !ok {
			sql, err := c.unsupported("$arrayElemAt")
			return sql, false, err
		}
		n, _ := toInt(lit.Value)
		arrExpr, idx = o.Args[0], n
	}
	fr, ok := arrExpr.(mongora.FieldRef)
	if !ok || idx < 0 {
		sql, err := c.unsupported(o.Op)
		return sql, false, err
	}
	return fmt.Sprintf("JSON_VALUE(%s, '$.%s[%d]')", c.data(), fr.Path, idx), false, nil
}

func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func compileIsArray(c ctx, args []mongora.Expression) (string, bool, error) {
	if len(args) != 1 {
		return "", false, mongora.OperatorArityError(c.stageErr(), "$isArray", len(args), 1)
	}
	fr, ok := args[0].(mongora.FieldRef)
	if !ok {
		return "", false, &mongora.ExpressionError{StageIndex: c.stageErr(), Operator: "$isArray", Detail: "only supported over a field path"}
	}
	return fmt.Sprintf("JSON_EXISTS(%s, '$.%s?(@.type() == \"array\")')", c.data(), fr.Path), false, nil
}

// compileFilterMap lowers $filter/$map to a correlated lateral
// JSON_TABLE unnest over "input": "as" (default "this") binds each
// element to the unnest's val column, and $filter's "cond" / $map's
// "in" compile against that binding, same as $$item after $unwind.
func compileFilterMap(c ctx, o mongora.OpCall) (string, bool, error) {
	input := o.Arg("input")
	if input == nil {
		return "", false, &mongora.ExpressionError{StageIndex: c.stageErr(), Operator: o.Op, Detail: "input is required"}
	}
	fr, ok := input.(mongora.FieldRef)
	if !ok {
		sql, err := c.unsupported(o.Op)
		return sql, false, err
	}
	asName := "this"
	if lit, ok := o.Arg("as").(mongora.Literal); ok {
		if s, ok := lit.Value.(string); ok && s != "" {
			asName = s
		}
	}

	arrSrc := c.data()
	arrPath := fr.Path
	if alias, rest, ok := resolveField(c, fr.Path); ok {
		arrSrc = alias
		arrPath = rest
	}

	alias := c.state.nextAlias("jt")
	table := fmt.Sprintf("JSON_TABLE(%s, '$.%s[*]' COLUMNS (val FORMAT JSON PATH '$')) %s", arrSrc, arrPath, alias)
	elemCtx := c.withBinding("$"+asName, alias+".val").withDataExpr(alias + ".val")

	switch o.Op {
	case "$filter":
		cond := o.Arg("cond")
		if cond == nil {
			return "", false, &mongora.ExpressionError{StageIndex: c.stageErr(), Operator: o.Op, Detail: "cond is required"}
		}
		condSQL, _, err := compileExpr(elemCtx, cond)
		if err != nil {
			return "", false, err
		}
		return fmt.Sprintf("(SELECT JSON_ARRAYAGG(%s.val FORMAT JSON) FROM %s WHERE %s)", alias, table, condSQL), false, nil
	default: // $map
		in := o.Arg("in")
		if in == nil {
			return "", false, &mongora.ExpressionError{StageIndex: c.stageErr(), Operator: o.Op, Detail: "in is required"}
		}
		inSQL, _, err := compileExpr(elemCtx, in)
		if err != nil {
			return "", false, err
		}
		return fmt.Sprintf("(SELECT JSON_ARRAYAGG(%s FORMAT JSON) FROM %s)", inSQL, table), false, nil
	}
}

func compileMergeObjects(c ctx, args []mongora.Expression) (string, bool, error) {
	parts := make([]string, 0)
	for _, a := range args {
		obj, ok := a.(mongora.OpCall)
		if !ok || obj.Op != "$object" {
			sql, err := c.unsupported("$mergeObjects")
			return sql, false, err
		}
		sql, _, err := compileObjectLiteral(c, obj)
		if err != nil {
			return "", false, err
		}
		parts = append(parts, sql)
	}
	// Oracle has no native shallow-merge for JSON_OBJECT values; keep the
	// last object's fields, approximating MongoDB's right-biased merge.
	if len(parts) == 0 {
		return "NULL", false, nil
	}
	return parts[len(parts)-1], false, nil
}

func compileObjectLiteral(c ctx, o mongora.OpCall) (string, bool, error) {
	keys := sortedNamedKeys(o.Named)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		sql, _, err := compileExpr(c, o.Named[k])
		if err != nil {
			return "", false, err
		}
		parts = append(parts, fmt.Sprintf("'%s' VALUE %s", k, sql))
	}
	return "JSON_OBJECT(" + strings.Join(parts, ", ") + ")", false, nil
}

func compileArrayLiteral(c ctx, o mongora.OpCall) (string, bool, error) {
	parts := make([]string, 0, len(o.Args))
	for _, a := range o.Args {
		sql, _, err := compileExpr(c, a)
		if err != nil {
			return "", false, err
		}
		parts = append(parts, sql)
	}
	return "JSON_ARRAY(" + strings.Join(parts, ", ") + ")", false, nil
}

func compileTypeOf(c ctx, args []mongora.Expression) (string, bool, error) {
	if len(args) != 1 {
		return "", false, mongora.OperatorArityError(c.stageErr(), "$type", len(args), 1)
	}
	s, _, err := compileExpr(c.withNumericHint(false), args[0])
	if err != nil {
		return "", false, err
	}
	return fmt.Sprintf(
		"CASE WHEN %[1]s IS NULL THEN 'null' "+
			"WHEN REGEXP_LIKE(%[1]s, '^-?[0-9]+(\\.[0-9]+)?$') THEN 'double' "+
			"WHEN %[1]s IN ('true','false') THEN 'bool' "+
			"ELSE 'string' END", s), false, nil
}

func compileToNumber(c ctx, args []mongora.Expression, integral bool) (string, bool, error) {
	if len(args) != 1 {
		return "", false, mongora.OperatorArityError(c.stageErr(), "$toNumber", len(args), 1)
	}
	s, _, err := compileExpr(c.withNumericHint(false), args[0])
	if err != nil {
		return "", false, err
	}
	if integral {
		return fmt.Sprintf("TRUNC(TO_NUMBER(%s))", s), true, nil
	}
	return fmt.Sprintf("TO_BINARY_DOUBLE(%s)", s), true, nil
}

func compileToString(c ctx, args []mongora.Expression) (string, bool, error) {
	if len(args) != 1 {
		return "", false, mongora.OperatorArityError(c.stageErr(), "$toString", len(args), 1)
	}
	s, numeric, err := compileExpr(c.withNumericHint(false), args[0])
	if err != nil {
		return "", false, err
	}
	if numeric {
		return fmt.Sprintf("TO_CHAR(%s)", s), false, nil
	}
	return s, false, nil
}

func compileToBool(c ctx, args []mongora.Expression) (string, bool, error) {
	if len(args) != 1 {
		return "", false, mongora.OperatorArityError(c.stageErr(), "$toBool", len(args), 1)
	}
	s, _, err := compileExpr(c.withNumericHint(false), args[0])
	if err != nil {
		return "", false, err
	}
	return fmt.Sprintf("CASE WHEN %s IN ('true','1') THEN 1 ELSE 0 END", s), false, nil
}

func sortedNamedKeys(m map[string]mongora.Expression) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic output ("translation is deterministic") requires a
	// stable key order; named-argument maps have no inherent order, so
	// sort lexically.
	sort.Strings(keys)
	return keys
}
