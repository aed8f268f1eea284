package mongora

import "strings"

// Expression is the closed sum type for MongoDB aggregation expressions:
// Literal, FieldRef, VarRef, and OpCall. The translator's expression
// compiler type-switches over this interface; adding an expression
// family means adding a variant here and a case in that switch.
type Expression interface {
	exprNode()
}

// Literal is a constant scalar: number, string, boolean, or null (Value == nil).
type Literal struct {
	Value interface{}
}

func (Literal) exprNode() {}

// FieldRef is a path rooted in the currently active row, e.g. "$a.b.c"
// parses to FieldRef{Path: "a.b.c"}.
type FieldRef struct {
	Path string
}

func (FieldRef) exprNode() {}

// VarRef is a path rooted in a bound variable, e.g. "$$item.a.b" parses to
// VarRef{Var: "item", Path: "a.b"}. A bare "$$item" has Path == "".
// System variables ($$ROOT, $$CURRENT, $$KEEP, $$PRUNE, $$DESCEND) are
// represented the same way with Var set to the variable name sans "$$".
type VarRef struct {
	Var  string
	Path string
}

func (VarRef) exprNode() {}

// OpCall is an operator applied to a positional and/or named argument
// list. Exactly one of Args/Named is populated for any given operator,
// following the shape MongoDB itself uses (array-style operators vs.
// object-style operators like $cond, $filter, $switch).
type OpCall struct {
	Op    string
	Args  []Expression
	Named map[string]Expression
}

func (OpCall) exprNode() {}

// Arg returns the named argument, or nil if absent.
func (o OpCall) Arg(name string) Expression {
	if o.Named == nil {
		return nil
	}
	return o.Named[name]
}

// parseFieldPath splits a "$a.b.c" or "$$var.a.b" reference into an
// Expression. Bare literals (no leading "$") are not handled here; see
// parseExpression for the dispatch between literal/field/var/op forms.
func parseFieldPath(s string) Expression {
	if strings.HasPrefix(s, "$$") {
		rest := s[2:]
		varName, path, _ := strings.Cut(rest, ".")
		return VarRef{Var: varName, Path: path}
	}
	return FieldRef{Path: strings.TrimPrefix(s, "$")}
}

// IsFieldPath reports whether s looks like a MongoDB path reference
// ("$foo" or "$$foo") rather than a literal value.
func IsFieldPath(s string) bool {
	return strings.HasPrefix(s, "$")
}
