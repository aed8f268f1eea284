package mongora

// Predicate is the closed sum type for the $match query-predicate
// language, which is distinct from the general expression language:
// {field: value} is implicit equality, {field: {$op: ...}} uses
// comparison operators, and $and/$or/$nor/$not nest arbitrarily.
//
// Geospatial and bitwise query operators (GeoWithin, Near, BitsAllSet,
// ...) have no SQL analog here and are not part of this closed set;
// encountering one yields UnknownOperator.
type Predicate interface {
	predNode()
}

// PredAnd is the logical AND of its clauses, including the implicit AND
// MongoDB applies across the top-level fields of a single {field: ...}
// document.
type PredAnd struct{ Clauses []Predicate }

func (PredAnd) predNode() {}

// PredOr is $or.
type PredOr struct{ Clauses []Predicate }

func (PredOr) predNode() {}

// PredNor is $nor: true iff none of Clauses match.
type PredNor struct{ Clauses []Predicate }

func (PredNor) predNode() {}

// PredNot is a field-scoped $not: {field: {$not: {operator-expr}}}.
type PredNot struct {
	Field string
	Inner Predicate
}

func (PredNot) predNode() {}

// PredCmp covers $eq, $ne, $gt, $gte, $lt, $lte (and the implicit-equality
// shorthand {field: value}, which parses to PredCmp{Op: "$eq"}).
type PredCmp struct {
	Field string
	Op    string // "$eq", "$ne", "$gt", "$gte", "$lt", "$lte"
	Value Expression
}

func (PredCmp) predNode() {}

// PredIn covers $in / $nin.
type PredIn struct {
	Field  string
	Values []Expression
	Negate bool // true for $nin
}

func (PredIn) predNode() {}

// PredExists covers $exists.
type PredExists struct {
	Field  string
	Exists bool
}

func (PredExists) predNode() {}

// PredType covers $type.
type PredType struct {
	Field string
	Type  Expression
}

func (PredType) predNode() {}

// PredRegex covers $regex / $options.
type PredRegex struct {
	Field   string
	Pattern string
	Options string
}

func (PredRegex) predNode() {}

// PredMod covers $mod.
type PredMod struct {
	Field     string
	Divisor   int64
	Remainder int64
}

func (PredMod) predNode() {}

// PredSize covers the array query operator $size.
type PredSize struct {
	Field string
	N     int64
}

func (PredSize) predNode() {}

// PredAll covers $all.
type PredAll struct {
	Field  string
	Values []Expression
}

func (PredAll) predNode() {}

// PredElemMatch covers $elemMatch.
type PredElemMatch struct {
	Field string
	Sub   Predicate
}

func (PredElemMatch) predNode() {}

// PredExpr covers {$expr: <aggregation expression>}, allowing
// cross-field comparisons inside $match.
type PredExpr struct {
	Expr Expression
}

func (PredExpr) predNode() {}
