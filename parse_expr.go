package mongora

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// namedArgOperators lists operators whose single argument is itself an
// object of named parameters rather than a positional array. $cond
// additionally accepts a 3-element positional array form, handled
// specially in parseExpression.
var namedArgOperators = map[string]bool{
	"$cond":             true,
	"$filter":           true,
	"$map":              true,
	"$reduce":           true,
	"$switch":           true,
	"$dateFromString":   true,
	"$dateToString":     true,
	"$dateAdd":          true,
	"$dateSubtract":     true,
	"$dateDiff":         true,
	"$dateTrunc":        true,
	"$convert":          true,
	"$regexMatch":       true,
	"$regexFind":        true,
	"$regexFindAll":     true,
	"$sortArray":        true,
	"$top":              true,
	"$bottom":           true,
	"$topN":             true,
	"$bottomN":          true,
	"$firstN":           true,
	"$lastN":            true,
	"$maxN":             true,
	"$minN":             true,
	"$percentile":       true,
	"$derivative":       true,
	"$integral":         true,
	"$shift":            true,
}

// parseExpression decodes one aggregation-expression value: a scalar
// literal, a "$field" path string, a "$$var" reference, or a single-key
// operator document, building an Expression AST node.
func parseExpression(idx int, value interface{}) (Expression, error) {
	switch v := value.(type) {
	case nil:
		return Literal{Value: nil}, nil
	case string:
		if IsFieldPath(v) {
			return parseFieldPath(v), nil
		}
		return Literal{Value: v}, nil
	case bson.D:
		if len(v) == 1 && isOperator(v[0].Key) {
			return parseOpCall(idx, v[0].Key, v[0].Value)
		}
		// A plain object literal (e.g. $replaceRoot's newRoot, or a
		// $project computed sub-document): each field is itself an
		// expression, assembled back into an object-construction OpCall.
		named := make(map[string]Expression, len(v))
		for _, e := range v {
			sub, err := parseExpression(idx, e.Value)
			if err != nil {
				return nil, err
			}
			named[e.Key] = sub
		}
		return OpCall{Op: "$object", Named: named}, nil
	case bson.A:
		args := make([]Expression, 0, len(v))
		for _, el := range v {
			sub, err := parseExpression(idx, el)
			if err != nil {
				return nil, err
			}
			args = append(args, sub)
		}
		return OpCall{Op: "$array", Args: args}, nil
	default:
		return Literal{Value: v}, nil
	}
}

// isOperator reports whether a document key names a recognized
// aggregation operator rather than a literal field name used as a
// single-key object (e.g. {"field": 1}, which is not an operator call).
// It accepts any "$"-prefixed key here and defers unknown-operator
// detection to parseOpCall/the translator: UnknownOperator is raised by
// the operator table, not by a hardcoded allow-list in the parser.
func isOperator(key string) bool {
	return len(key) > 0 && key[0] == '$'
}

func parseOpCall(idx int, op string, arg interface{}) (Expression, error) {
	if namedArgOperators[op] {
		d, ok := arg.(bson.D)
		if !ok {
			if op == "$cond" {
				// $cond also accepts [if, then, else].
				arr, ok := arg.(bson.A)
				if !ok || len(arr) != 3 {
					return nil, OperatorArityError(idx, op, arrLen(arg), 3)
				}
				ifE, err := parseExpression(idx, arr[0])
				if err != nil {
					return nil, err
				}
				thenE, err := parseExpression(idx, arr[1])
				if err != nil {
					return nil, err
				}
				elseE, err := parseExpression(idx, arr[2])
				if err != nil {
					return nil, err
				}
				return OpCall{Op: op, Named: map[string]Expression{"if": ifE, "then": thenE, "else": elseE}}, nil
			}
			return nil, &ExpressionError{StageIndex: idx, Operator: op, Detail: "expected a document argument"}
		}
		named := make(map[string]Expression, len(d))
		for _, e := range d {
			if op == "$switch" && e.Key == "branches" {
				arr, ok := e.Value.(bson.A)
				if !ok {
					return nil, &ExpressionError{StageIndex: idx, Operator: op, Detail: "branches must be an array"}
				}
				var positional []Expression
				for _, br := range arr {
					brDoc, ok := br.(bson.D)
					if !ok {
						return nil, &ExpressionError{StageIndex: idx, Operator: op, Detail: "each branch must be a document"}
					}
					caseV := docLookup(brDoc, "case")
					thenV := docLookup(brDoc, "then")
					caseE, err := parseExpression(idx, caseV)
					if err != nil {
						return nil, err
					}
					thenE, err := parseExpression(idx, thenV)
					if err != nil {
						return nil, err
					}
					positional = append(positional, OpCall{Op: "$branch", Args: []Expression{caseE, thenE}})
				}
				named["branches"] = OpCall{Op: "$array", Args: positional}
				continue
			}
			sub, err := parseExpression(idx, e.Value)
			if err != nil {
				return nil, err
			}
			named[e.Key] = sub
		}
		return OpCall{Op: op, Named: named}, nil
	}

	// Positional operators: a bare scalar/field means one argument, a
	// bson.A means variadic/fixed-arity args.
	if arr, ok := arg.(bson.A); ok {
		args := make([]Expression, 0, len(arr))
		for _, el := range arr {
			sub, err := parseExpression(idx, el)
			if err != nil {
				return nil, err
			}
			args = append(args, sub)
		}
		return OpCall{Op: op, Args: args}, nil
	}
	sub, err := parseExpression(idx, arg)
	if err != nil {
		return nil, err
	}
	return OpCall{Op: op, Args: []Expression{sub}}, nil
}

func arrLen(v interface{}) int {
	if arr, ok := v.(bson.A); ok {
		return len(arr)
	}
	return 1
}

// ---- predicate parsing ($match) ----

var predOperators = map[string]bool{
	"$eq": true, "$ne": true, "$gt": true, "$gte": true, "$lt": true, "$lte": true,
	"$in": true, "$nin": true, "$exists": true, "$type": true, "$regex": true,
	"$mod": true, "$size": true, "$all": true, "$elemMatch": true, "$not": true,
}

// parsePredicate decodes a $match document (or a nested predicate
// sub-document) into the Predicate AST: top-level fields AND together
// implicitly; $and/$or/$nor hold arrays of sub-documents; $expr wraps an
// aggregation expression; every other field is either implicit equality
// or a {$op: value, ...} operator document.
func parsePredicate(idx int, d bson.D) (Predicate, error) {
	var clauses []Predicate
	for _, e := range d {
		switch e.Key {
		case "$and":
			sub, err := parsePredicateArray(idx, e.Value)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, PredAnd{Clauses: sub})
		case "$or":
			sub, err := parsePredicateArray(idx, e.Value)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, PredOr{Clauses: sub})
		case "$nor":
			sub, err := parsePredicateArray(idx, e.Value)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, PredNor{Clauses: sub})
		case "$expr":
			expr, err := parseExpression(idx, e.Value)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, PredExpr{Expr: expr})
		default:
			fieldPred, err := parseFieldPredicate(idx, e.Key, e.Value)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, fieldPred)
		}
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return PredAnd{Clauses: clauses}, nil
}

func parsePredicateArray(idx int, value interface{}) ([]Predicate, error) {
	arr, ok := value.(bson.A)
	if !ok {
		return nil, &InputError{Detail: "logical operator expects an array of documents"}
	}
	out := make([]Predicate, 0, len(arr))
	for _, el := range arr {
		sd, ok := el.(bson.D)
		if !ok {
			return nil, &InputError{Detail: "logical operator array element must be a document"}
		}
		p, err := parsePredicate(idx, sd)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// parseFieldPredicate handles one {field: value} entry, where value is
// either a scalar (implicit equality) or an operator document.
func parseFieldPredicate(idx int, field string, value interface{}) (Predicate, error) {
	d, ok := value.(bson.D)
	if !ok {
		expr, err := parseExpression(idx, value)
		if err != nil {
			return nil, err
		}
		return PredCmp{Field: field, Op: "$eq", Value: expr}, nil
	}
	if len(d) == 0 || !isOperator(d[0].Key) {
		expr, err := parseExpression(idx, value)
		if err != nil {
			return nil, err
		}
		return PredCmp{Field: field, Op: "$eq", Value: expr}, nil
	}

	var clauses []Predicate
	var regexPattern, regexOptions string
	hasRegex := false
	for _, oe := range d {
		if !predOperators[oe.Key] {
			return nil, UnknownOperator(idx, oe.Key)
		}
		switch oe.Key {
		case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte":
			expr, err := parseExpression(idx, oe.Value)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, PredCmp{Field: field, Op: oe.Key, Value: expr})
		case "$in", "$nin":
			arr, ok := oe.Value.(bson.A)
			if !ok {
				return nil, StageArgError(idx, oe.Key, fmt.Sprintf("%s requires an array", oe.Key))
			}
			vals := make([]Expression, 0, len(arr))
			for _, el := range arr {
				ex, err := parseExpression(idx, el)
				if err != nil {
					return nil, err
				}
				vals = append(vals, ex)
			}
			clauses = append(clauses, PredIn{Field: field, Values: vals, Negate: oe.Key == "$nin"})
		case "$exists":
			b, _ := oe.Value.(bool)
			clauses = append(clauses, PredExists{Field: field, Exists: b})
		case "$type":
			expr, err := parseExpression(idx, oe.Value)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, PredType{Field: field, Type: expr})
		case "$regex":
			hasRegex = true
			switch rv := oe.Value.(type) {
			case string:
				regexPattern = rv
			case bson.Regex:
				regexPattern = rv.Pattern
				regexOptions = rv.Options
			}
		case "$mod":
			arr, ok := oe.Value.(bson.A)
			if !ok || len(arr) != 2 {
				return nil, OperatorArityError(idx, "$mod", arrLen(oe.Value), 2)
			}
			div, _ := toInt64(arr[0])
			rem, _ := toInt64(arr[1])
			clauses = append(clauses, PredMod{Field: field, Divisor: div, Remainder: rem})
		case "$size":
			n, err := toInt64(oe.Value)
			if err != nil {
				return nil, StageArgError(idx, "$size", "expects a numeric argument")
			}
			clauses = append(clauses, PredSize{Field: field, N: n})
		case "$all":
			arr, ok := oe.Value.(bson.A)
			if !ok {
				return nil, StageArgError(idx, "$all", "expects an array")
			}
			vals := make([]Expression, 0, len(arr))
			for _, el := range arr {
				ex, err := parseExpression(idx, el)
				if err != nil {
					return nil, err
				}
				vals = append(vals, ex)
			}
			clauses = append(clauses, PredAll{Field: field, Values: vals})
		case "$elemMatch":
			sub, ok := oe.Value.(bson.D)
			if !ok {
				return nil, StageArgError(idx, "$elemMatch", "expects a document")
			}
			inner, err := parsePredicate(idx, sub)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, PredElemMatch{Field: field, Sub: inner})
		case "$not":
			var inner Predicate
			var err error
			switch nv := oe.Value.(type) {
			case bson.D:
				inner, err = parsePredicate(idx, nv)
			default:
				inner, err = parseFieldPredicate(idx, field, oe.Value)
			}
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, PredNot{Field: field, Inner: inner})
		}
	}
	if hasRegex {
		clauses = append(clauses, PredRegex{Field: field, Pattern: regexPattern, Options: regexOptions})
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return PredAnd{Clauses: clauses}, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}
