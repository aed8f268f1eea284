package translator

import (
	"strconv"

	"github.com/squall-chua/mongora"
)

// scope describes where in a plan an expression is being compiled: the
// root document, an unnested array element, or inside a $group
// accumulator.
type scope int

const (
	scopeDocument scope = iota
	scopeUnnested
	scopeGroupAggregate
)

// ctx is the compilation context threaded by value down the expression
// tree — path context standing in for implicit globals: row_alias, a
// variable-binding map, a numeric-result hint, and the active scope.
// Because it is passed by value, extending a binding for a
// sub-expression (e.g. entering a $filter's "as" scope) never leaks back
// to the caller.
type ctx struct {
	rowAlias string
	// dataExpr is the SQL expression holding the active JSON document;
	// it defaults to "<rowAlias>.data" but is overridden when compiling
	// inside a row bound by $elemMatch or a lateral JSON_TABLE unnest
	// whose element is itself the document root for nested field paths.
	dataExpr    string
	bindings    map[string]string // var name -> SQL fragment (e.g. JSON_TABLE column ref)
	numericHint bool
	scope       scope

	state *compileState
}

// data returns the SQL expression to extract fields from: dataExpr if
// set, otherwise "<rowAlias>.data".
func (c ctx) data() string {
	if c.dataExpr != "" {
		return c.dataExpr
	}
	return c.rowAlias + ".data"
}

// withDataExpr returns a copy of c rooted at a different JSON document
// expression, used to enter an $elemMatch or unnested-row scope.
func (c ctx) withDataExpr(expr string) ctx {
	c.dataExpr = expr
	return c
}

// compileState is the one piece of state that must be shared (not
// copied) across an entire translation: the bind-variable counter and
// running parameter list, plus a deterministic alias allocator. It is
// held by pointer from every ctx derived during one Translate call.
type compileState struct {
	settings    *Settings
	bindCounter int
	params      []interface{}
	aliasSeq    map[string]int
	stageIdx    int
}

func newCompileState(settings *Settings) *compileState {
	return &compileState{settings: settings, aliasSeq: make(map[string]int)}
}

// nextAlias returns a fresh alias derived from base (typically the first
// letter of a collection name), appending an integer once base has been
// used before, guaranteeing every alias in one translation is unique.
func (cs *compileState) nextAlias(base string) string {
	n := cs.aliasSeq[base]
	cs.aliasSeq[base] = n + 1
	if n == 0 {
		return base
	}
	return base + strconv.Itoa(n)
}

func rootCtx(settings *Settings, alias string) ctx {
	return ctx{
		rowAlias: alias,
		bindings: map[string]string{},
		scope:    scopeDocument,
		state:    newCompileState(settings),
	}
}

// withNumericHint returns a copy of c with numericHint set.
func (c ctx) withNumericHint(v bool) ctx {
	c.numericHint = v
	return c
}

// withBinding returns a copy of c with name bound to sqlExpr, used when
// entering $filter/$map/$reduce's variable scope.
func (c ctx) withBinding(name, sqlExpr string) ctx {
	next := make(map[string]string, len(c.bindings)+1)
	for k, v := range c.bindings {
		next[k] = v
	}
	next[name] = sqlExpr
	c.bindings = next
	return c
}

func (c ctx) withScope(s scope) ctx {
	c.scope = s
	return c
}

func (c ctx) withRowAlias(alias string) ctx {
	c.rowAlias = alias
	return c
}

func (c ctx) stageErr() int {
	return c.state.stageIdx
}

func (c ctx) unsupported(op string) (string, error) {
	if c.state.settings.UnsupportedMode == UnsupportedStrict {
		return "", &mongora.UnsupportedError{StageIndex: c.state.stageIdx, Operator: op}
	}
	c.state.settings.Logger.WithField("operator", op).Warn("emitting lenient sentinel for unsupported operator")
	return "NULL /* " + op + " not fully supported */", nil
}
