package mongora

// Pipeline is an ordered sequence of Stages, the root of the AST produced
// by Parse: typed Stage values rather than raw BSON, since this AST is
// consumed by a compiler rather than handed to a mongo.Collection.
type Pipeline struct {
	Stages []Stage
}

// Stage is the closed tagged set of supported aggregation pipeline
// stages: Match, Project, AddFields, Group, Sort, Limit, Skip, Count,
// Unwind, Lookup, GraphLookup, UnionWith, Facet, Bucket, BucketAuto,
// ReplaceRoot, Redact, Sample, SetWindowFields.
type Stage interface {
	stageNode()
	// StageName returns the canonical "$xxx" operator name, used in
	// diagnostics and by the translator's per-stage dispatch table.
	StageName() string
}

// NamedExpr is a (field name, expression) pair used by $project,
// $addFields, $group accumulators, and $setWindowFields outputs.
type NamedExpr struct {
	Name string
	Expr Expression
}

// SortKey is one key of a $sort (or sortBy) specification.
type SortKey struct {
	Field string
	Desc  bool
}

// MatchStage is $match.
type MatchStage struct{ Predicate Predicate }

func (MatchStage) stageNode()        {}
func (MatchStage) StageName() string { return "$match" }

// ProjectField is one entry of a $project stage: either an inclusion/
// exclusion flag (Expr == nil) or a computed field (Expr != nil).
type ProjectField struct {
	Name    string
	Include bool
	Expr    Expression
}

// ProjectStage is $project. IncludeID is nil when _id was not mentioned
// (defaults to included), or points to an explicit true/false.
type ProjectStage struct {
	Fields    []ProjectField
	IncludeID *bool
}

func (ProjectStage) stageNode()        {}
func (ProjectStage) StageName() string { return "$project" }

// AddFieldsStage is $addFields (and its normalized alias $set).
type AddFieldsStage struct{ Fields []NamedExpr }

func (AddFieldsStage) stageNode()        {}
func (AddFieldsStage) StageName() string { return "$addFields" }

// GroupStage is $group. Accumulators preserve declaration order, since
// that order becomes the SELECT-list order in the emitted SQL.
type GroupStage struct {
	ID           Expression
	Accumulators []NamedExpr // each Expr is an OpCall accumulator ($sum, $avg, ...)
}

func (GroupStage) stageNode()        {}
func (GroupStage) StageName() string { return "$group" }

// SortStage is $sort.
type SortStage struct{ Keys []SortKey }

func (SortStage) stageNode()        {}
func (SortStage) StageName() string { return "$sort" }

// LimitStage is $limit.
type LimitStage struct{ N int64 }

func (LimitStage) stageNode()        {}
func (LimitStage) StageName() string { return "$limit" }

// SkipStage is $skip.
type SkipStage struct{ N int64 }

func (SkipStage) stageNode()        {}
func (SkipStage) StageName() string { return "$skip" }

// CountStage is $count. Parse keeps it as this single stage; it is not
// rewritten into a GroupStage + ProjectStage pair.
type CountStage struct{ Field string }

func (CountStage) stageNode()        {}
func (CountStage) StageName() string { return "$count" }

// UnwindStage is $unwind, always normalized to object form at parse time.
type UnwindStage struct {
	Path                       string
	IncludeArrayIndex          string
	PreserveNullAndEmptyArrays bool
}

func (UnwindStage) stageNode()        {}
func (UnwindStage) StageName() string { return "$unwind" }

// LookupStage is $lookup, either the simple local/foreign field form or
// the sub-pipeline form (Pipeline != nil).
type LookupStage struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
	Let          []NamedExpr
	Pipeline     *Pipeline
}

func (LookupStage) stageNode()        {}
func (LookupStage) StageName() string { return "$lookup" }

// GraphLookupStage is $graphLookup.
type GraphLookupStage struct {
	From                    string
	StartWith               Expression
	ConnectFromField        string
	ConnectToField          string
	As                      string
	MaxDepth                *int64
	DepthField              string
	RestrictSearchWithMatch Predicate
}

func (GraphLookupStage) stageNode()        {}
func (GraphLookupStage) StageName() string { return "$graphLookup" }

// UnionWithStage is $unionWith.
type UnionWithStage struct {
	Coll     string
	Pipeline *Pipeline // nil if the foreign collection is used unmodified
}

func (UnionWithStage) stageNode()        {}
func (UnionWithStage) StageName() string { return "$unionWith" }

// FacetEntry is one named sub-pipeline of a $facet stage. A slice (not a
// map) preserves declaration order, which becomes the key order of the
// emitted JSON_OBJECT.
type FacetEntry struct {
	Name     string
	Pipeline Pipeline
}

// FacetStage is $facet.
type FacetStage struct{ Facets []FacetEntry }

func (FacetStage) stageNode()        {}
func (FacetStage) StageName() string { return "$facet" }

// BucketStage is $bucket.
type BucketStage struct {
	GroupBy     Expression
	Boundaries  []Expression
	Default     Expression // nil if absent
	HasDefault  bool
	Accumulator []NamedExpr // output spec; defaults to {count: {$sum: 1}} if empty
}

func (BucketStage) stageNode()        {}
func (BucketStage) StageName() string { return "$bucket" }

// BucketAutoStage is $bucketAuto.
type BucketAutoStage struct {
	GroupBy     Expression
	Buckets     int64
	Accumulator []NamedExpr
	Granularity string
}

func (BucketAutoStage) stageNode()        {}
func (BucketAutoStage) StageName() string { return "$bucketAuto" }

// ReplaceRootStage is $replaceRoot (and its alias $replaceWith).
type ReplaceRootStage struct{ NewRoot Expression }

func (ReplaceRootStage) stageNode()        {}
func (ReplaceRootStage) StageName() string { return "$replaceRoot" }

// RedactStage is $redact.
type RedactStage struct{ Expr Expression }

func (RedactStage) stageNode()        {}
func (RedactStage) StageName() string { return "$redact" }

// SampleStage is $sample.
type SampleStage struct{ Size int64 }

func (SampleStage) stageNode()        {}
func (SampleStage) StageName() string { return "$sample" }

// WindowSpec is the "window" sub-document of a $setWindowFields output:
// documents/range bounds, e.g. {documents: [-1, 0]}.
type WindowSpec struct {
	BoundsType string // "documents" or "range"
	Lower      Expression
	Upper      Expression
}

// WindowOutput is one named output of $setWindowFields.
type WindowOutput struct {
	Name   string
	Acc    Expression // OpCall, e.g. $sum, $rank, $denseRank, $documentNumber
	Window *WindowSpec
}

// SetWindowFieldsStage is $setWindowFields.
type SetWindowFieldsStage struct {
	PartitionBy Expression // nil if absent
	SortBy      []SortKey
	Output      []WindowOutput
}

func (SetWindowFieldsStage) stageNode()        {}
func (SetWindowFieldsStage) StageName() string { return "$setWindowFields" }
