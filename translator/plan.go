// Package translator implements components C3 through C6 of the bridge:
// the expression compiler, the per-stage compilers, the relational plan
// model with its fusion rules, and the final SQL emitter. The root
// mongora package owns C1/C2 (the AST and its parser); this package
// consumes a mongora.Pipeline and produces a single Oracle SQL string.
package translator

// SelectItem is one projected column: an output alias and the SQL
// expression producing it.
type SelectItem struct {
	Alias string
	Expr  string
}

// JoinKind distinguishes the three join shapes the emitter supports.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinLateral
)

// SetOpKind is the closed set of supported set operations: only UNION
// ALL ($unionWith) is needed.
type SetOpKind int

const (
	SetOpUnionAll SetOpKind = iota
)

// Plan is the relational intermediate representation stage compilers
// build and the emitter walks. It is a single struct with a Kind
// discriminator rather than an interface hierarchy of node types: the
// node shapes share enough fields (a single Child, an Alias) that one
// tagged struct keeps fusion logic (matching on Kind, mutating in
// place) simpler than a type-switch over eleven node types.
type Plan struct {
	Kind PlanKind

	// Scan
	Collection string
	Alias      string

	// Filter
	Child     *Plan
	Predicate string

	// Project
	Select   []SelectItem
	Distinct bool

	// Aggregate
	GroupKeys  []SelectItem
	Aggregates []SelectItem
	HasGroupBy bool

	// OutAlias is the alias a later stage's already-compiled SQL
	// fragments reference by name once this node's output has replaced
	// the raw JSON document as the active row (Aggregate and Window
	// nodes only). The emitter must wrap this node's SELECT under
	// exactly this alias so those fragments still resolve.
	OutAlias string

	// Sort / LimitOffset
	SortKeys []SortKey
	Limit    *int64
	Offset   *int64

	// Join
	JoinKind  JoinKind
	Left      *Plan
	Right     *Plan
	JoinOn    string
	RightName string // alias exposed for the joined side

	// Unnest
	UnnestPath         string
	UnnestAlias        string
	UnnestPreserveNull bool

	// Window
	WindowOutputs []WindowItem

	// SetOp
	SetOpKind SetOpKind
	Children  []*Plan

	// Facet
	Facets []FacetPlan
}

// PlanKind discriminates Plan's active fields.
type PlanKind int

const (
	PlanScan PlanKind = iota
	PlanFilter
	PlanProject
	PlanAggregate
	PlanSort
	PlanLimitOffset
	PlanJoin
	PlanUnnest
	PlanWindow
	PlanSetOp
	PlanFacet
)

// SortKey is one ORDER BY key on a Plan.
type SortKey struct {
	Expr string
	Desc bool
}

// WindowItem is one computed window-function output column.
type WindowItem struct {
	Alias string
	Expr  string // already includes the full OVER(...) clause
}

// FacetPlan is one named sub-plan of a $facet.
type FacetPlan struct {
	Name string
	Plan *Plan
}

// NewScan builds the base Plan for a collection: SELECT * semantics
// over the id/data columns, matching the empty-pipeline boundary
// behavior (no stages ⇒ SELECT * FROM <collection>).
func NewScan(collection, alias string) *Plan {
	return &Plan{Kind: PlanScan, Collection: collection, Alias: alias}
}

// defaultSelect is the select list used when no $project/$group/etc. has
// run yet: the raw id and data columns of the base row.
func defaultSelect(alias string) []SelectItem {
	return []SelectItem{
		{Alias: "id", Expr: alias + ".id"},
		{Alias: "data", Expr: alias + ".data"},
	}
}
