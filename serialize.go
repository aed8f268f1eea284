package mongora

import (
	"bytes"
	"encoding/json"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// DumpJSON renders a Pipeline back to pretty-printed MongoDB Extended JSON,
// the inverse of Parse. It exists for debugging and golden-test fixtures:
// round-tripping a pipeline through Parse then DumpJSON should reproduce
// the input modulo the parser's own normalizations ($set -> $addFields,
// scalar $unwind -> object form, $sortByCount -> $group+$sort,
// $unset -> exclusion $project),
// which is exactly the property pipeline_test.go exercises.
//
// DumpJSON walks the typed AST, converting each Stage/Expression/
// Predicate node into an equivalent bson.D before handing the whole
// tree to bson.MarshalExtJSON.
func DumpJSON(p Pipeline) string {
	arr := pipelineToBSON(p)
	raw, err := bson.MarshalExtJSON(arr, false, false)
	if err != nil {
		return "[]"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// CompactJSON is DumpJSON without indentation.
func CompactJSON(p Pipeline) string {
	arr := pipelineToBSON(p)
	raw, err := bson.MarshalExtJSON(arr, false, false)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func pipelineToBSON(p Pipeline) bson.A {
	out := make(bson.A, 0, len(p.Stages))
	for _, s := range p.Stages {
		out = append(out, bson.D{{Key: s.StageName(), Value: stageToBSON(s)}})
	}
	return out
}

func stageToBSON(s Stage) interface{} {
	switch v := s.(type) {
	case MatchStage:
		return predToBSON(v.Predicate)
	case ProjectStage:
		d := bson.D{}
		if v.IncludeID != nil {
			d = append(d, bson.E{Key: "_id", Value: boolToInt(*v.IncludeID)})
		}
		for _, f := range v.Fields {
			if f.Expr != nil {
				d = append(d, bson.E{Key: f.Name, Value: exprToBSON(f.Expr)})
			} else {
				d = append(d, bson.E{Key: f.Name, Value: boolToInt(f.Include)})
			}
		}
		return d
	case AddFieldsStage:
		return namedExprsToBSON(v.Fields)
	case GroupStage:
		d := bson.D{{Key: "_id", Value: exprToBSON(v.ID)}}
		for _, a := range v.Accumulators {
			d = append(d, bson.E{Key: a.Name, Value: exprToBSON(a.Expr)})
		}
		return d
	case SortStage:
		d := bson.D{}
		for _, k := range v.Keys {
			dir := 1
			if k.Desc {
				dir = -1
			}
			d = append(d, bson.E{Key: k.Field, Value: dir})
		}
		return d
	case LimitStage:
		return v.N
	case SkipStage:
		return v.N
	case CountStage:
		return v.Field
	case UnwindStage:
		d := bson.D{{Key: "path", Value: "$" + v.Path}}
		if v.IncludeArrayIndex != "" {
			d = append(d, bson.E{Key: "includeArrayIndex", Value: v.IncludeArrayIndex})
		}
		d = append(d, bson.E{Key: "preserveNullAndEmptyArrays", Value: v.PreserveNullAndEmptyArrays})
		return d
	case LookupStage:
		d := bson.D{{Key: "from", Value: v.From}}
		if v.Pipeline != nil {
			if len(v.Let) > 0 {
				d = append(d, bson.E{Key: "let", Value: namedExprsToBSON(v.Let)})
			}
			d = append(d, bson.E{Key: "pipeline", Value: pipelineToBSON(*v.Pipeline)})
		} else {
			d = append(d, bson.E{Key: "localField", Value: v.LocalField}, bson.E{Key: "foreignField", Value: v.ForeignField})
		}
		d = append(d, bson.E{Key: "as", Value: v.As})
		return d
	case FacetStage:
		d := bson.D{}
		for _, f := range v.Facets {
			d = append(d, bson.E{Key: f.Name, Value: pipelineToBSON(f.Pipeline)})
		}
		return d
	case ReplaceRootStage:
		return bson.D{{Key: "newRoot", Value: exprToBSON(v.NewRoot)}}
	case RedactStage:
		return exprToBSON(v.Expr)
	case SampleStage:
		return bson.D{{Key: "size", Value: v.Size}}
	case BucketStage:
		d := bson.D{{Key: "groupBy", Value: exprToBSON(v.GroupBy)}}
		bounds := make(bson.A, 0, len(v.Boundaries))
		for _, b := range v.Boundaries {
			bounds = append(bounds, exprToBSON(b))
		}
		d = append(d, bson.E{Key: "boundaries", Value: bounds})
		if v.HasDefault {
			d = append(d, bson.E{Key: "default", Value: exprToBSON(v.Default)})
		}
		if len(v.Accumulator) > 0 {
			d = append(d, bson.E{Key: "output", Value: namedExprsToBSON(v.Accumulator)})
		}
		return d
	case BucketAutoStage:
		d := bson.D{{Key: "groupBy", Value: exprToBSON(v.GroupBy)}, {Key: "buckets", Value: v.Buckets}}
		if v.Granularity != "" {
			d = append(d, bson.E{Key: "granularity", Value: v.Granularity})
		}
		if len(v.Accumulator) > 0 {
			d = append(d, bson.E{Key: "output", Value: namedExprsToBSON(v.Accumulator)})
		}
		return d
	case UnionWithStage:
		if v.Pipeline == nil {
			return v.Coll
		}
		return bson.D{{Key: "coll", Value: v.Coll}, {Key: "pipeline", Value: pipelineToBSON(*v.Pipeline)}}
	case GraphLookupStage:
		d := bson.D{
			{Key: "from", Value: v.From},
			{Key: "startWith", Value: exprToBSON(v.StartWith)},
			{Key: "connectFromField", Value: v.ConnectFromField},
			{Key: "connectToField", Value: v.ConnectToField},
			{Key: "as", Value: v.As},
		}
		if v.MaxDepth != nil {
			d = append(d, bson.E{Key: "maxDepth", Value: *v.MaxDepth})
		}
		if v.DepthField != "" {
			d = append(d, bson.E{Key: "depthField", Value: v.DepthField})
		}
		if v.RestrictSearchWithMatch != nil {
			d = append(d, bson.E{Key: "restrictSearchWithMatch", Value: predToBSON(v.RestrictSearchWithMatch)})
		}
		return d
	case SetWindowFieldsStage:
		d := bson.D{}
		if v.PartitionBy != nil {
			d = append(d, bson.E{Key: "partitionBy", Value: exprToBSON(v.PartitionBy)})
		}
		if len(v.SortBy) > 0 {
			sortBy := bson.D{}
			for _, k := range v.SortBy {
				dir := 1
				if k.Desc {
					dir = -1
				}
				sortBy = append(sortBy, bson.E{Key: k.Field, Value: dir})
			}
			d = append(d, bson.E{Key: "sortBy", Value: sortBy})
		}
		out := bson.D{}
		for _, o := range v.Output {
			entry := exprToBSON(o.Acc).(bson.D)
			if o.Window != nil {
				bounds := bson.A{windowBoundToBSON(o.Window.Lower), windowBoundToBSON(o.Window.Upper)}
				entry = append(entry, bson.E{Key: "window", Value: bson.D{{Key: o.Window.BoundsType, Value: bounds}}})
			}
			out = append(out, bson.E{Key: o.Name, Value: entry})
		}
		d = append(d, bson.E{Key: "output", Value: out})
		return d
	default:
		return bson.D{}
	}
}

func windowBoundToBSON(e Expression) interface{} {
	if e == nil {
		return "unbounded"
	}
	return exprToBSON(e)
}

func namedExprsToBSON(fields []NamedExpr) bson.D {
	d := bson.D{}
	for _, f := range fields {
		d = append(d, bson.E{Key: f.Name, Value: exprToBSON(f.Expr)})
	}
	return d
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func exprToBSON(e Expression) interface{} {
	switch v := e.(type) {
	case nil:
		return nil
	case Literal:
		return v.Value
	case FieldRef:
		return "$" + v.Path
	case VarRef:
		if v.Path == "" {
			return "$$" + v.Var
		}
		return "$$" + v.Var + "." + v.Path
	case OpCall:
		if v.Named != nil {
			d := bson.D{}
			for k, arg := range v.Named {
				d = append(d, bson.E{Key: k, Value: exprToBSON(arg)})
			}
			return bson.D{{Key: v.Op, Value: d}}
		}
		if len(v.Args) == 1 {
			return bson.D{{Key: v.Op, Value: exprToBSON(v.Args[0])}}
		}
		args := make(bson.A, 0, len(v.Args))
		for _, a := range v.Args {
			args = append(args, exprToBSON(a))
		}
		return bson.D{{Key: v.Op, Value: args}}
	default:
		return nil
	}
}

func predToBSON(p Predicate) bson.D {
	switch v := p.(type) {
	case nil:
		return bson.D{}
	case PredAnd:
		return bson.D{{Key: "$and", Value: predsToBSON(v.Clauses)}}
	case PredOr:
		return bson.D{{Key: "$or", Value: predsToBSON(v.Clauses)}}
	case PredNor:
		return bson.D{{Key: "$nor", Value: predsToBSON(v.Clauses)}}
	case PredNot:
		return bson.D{{Key: v.Field, Value: bson.D{{Key: "$not", Value: predToBSON(v.Inner)}}}}
	case PredCmp:
		if v.Op == "$eq" {
			return bson.D{{Key: v.Field, Value: exprToBSON(v.Value)}}
		}
		return bson.D{{Key: v.Field, Value: bson.D{{Key: v.Op, Value: exprToBSON(v.Value)}}}}
	case PredIn:
		op := "$in"
		if v.Negate {
			op = "$nin"
		}
		arr := make(bson.A, 0, len(v.Values))
		for _, val := range v.Values {
			arr = append(arr, exprToBSON(val))
		}
		return bson.D{{Key: v.Field, Value: bson.D{{Key: op, Value: arr}}}}
	case PredExists:
		return bson.D{{Key: v.Field, Value: bson.D{{Key: "$exists", Value: v.Exists}}}}
	case PredType:
		return bson.D{{Key: v.Field, Value: bson.D{{Key: "$type", Value: exprToBSON(v.Type)}}}}
	case PredRegex:
		return bson.D{{Key: v.Field, Value: bson.D{{Key: "$regex", Value: v.Pattern}, {Key: "$options", Value: v.Options}}}}
	case PredMod:
		return bson.D{{Key: v.Field, Value: bson.D{{Key: "$mod", Value: bson.A{v.Divisor, v.Remainder}}}}}
	case PredSize:
		return bson.D{{Key: v.Field, Value: bson.D{{Key: "$size", Value: v.N}}}}
	case PredAll:
		arr := make(bson.A, 0, len(v.Values))
		for _, val := range v.Values {
			arr = append(arr, exprToBSON(val))
		}
		return bson.D{{Key: v.Field, Value: bson.D{{Key: "$all", Value: arr}}}}
	case PredElemMatch:
		return bson.D{{Key: v.Field, Value: bson.D{{Key: "$elemMatch", Value: predToBSON(v.Sub)}}}}
	case PredExpr:
		return bson.D{{Key: "$expr", Value: exprToBSON(v.Expr)}}
	default:
		return bson.D{}
	}
}

func predsToBSON(ps []Predicate) bson.A {
	arr := make(bson.A, 0, len(ps))
	for _, p := range ps {
		arr = append(arr, predToBSON(p))
	}
	return arr
}
