package mongora

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Parse turns a MongoDB Extended JSON pipeline array ("[{\"$match\": ...},
// ...]") into a Pipeline AST, normalizing sugar stages as it goes: $set
// becomes $addFields, scalar-form $unwind becomes the object form, and
// $sortByCount/$unset are desugared into their $group/$sort and $project
// equivalents respectively. $count is kept as a single CountStage, not
// rewritten into $group+$project; the translator lowers it to a COUNT(*)
// aggregate. Parse validates shape (known stage names, required
// keys, arities) but performs no schema-aware checks; those belong to
// the translator's compile phase.
//
// Unmarshals Extended JSON via bson.UnmarshalExtJSON, then walks the
// decoded value stage by stage, dispatching on the single key of each
// stage document.
func Parse(pipelineJSON string) (Pipeline, error) {
	var raw bson.A
	if err := bson.UnmarshalExtJSON([]byte(pipelineJSON), false, &raw); err != nil {
		return Pipeline{}, &InputError{Detail: err.Error()}
	}

	var out Pipeline
	for i, el := range raw {
		d, ok := el.(bson.D)
		if !ok {
			return Pipeline{}, &InputError{Detail: fmt.Sprintf("stage %d is not a document", i)}
		}
		if len(d) != 1 {
			return Pipeline{}, &InputError{Detail: fmt.Sprintf("stage %d must have exactly one operator key, got %d", i, len(d))}
		}
		name := d[0].Key
		stages, err := parseStage(i, name, d[0].Value)
		if err != nil {
			return Pipeline{}, err
		}
		out.Stages = append(out.Stages, stages...)
	}
	return out, nil
}

// parseStage returns one or more AST stages for a single pipeline entry;
// more than one is produced only by $sortByCount ($group followed by
// $sort).
func parseStage(idx int, name string, value interface{}) ([]Stage, error) {
	switch name {
	case "$match":
		d, err := asDoc(idx, name, value)
		if err != nil {
			return nil, err
		}
		pred, err := parsePredicate(idx, d)
		if err != nil {
			return nil, err
		}
		return []Stage{MatchStage{Predicate: pred}}, nil

	case "$project":
		d, err := asDoc(idx, name, value)
		if err != nil {
			return nil, err
		}
		proj, err := parseProject(idx, d)
		if err != nil {
			return nil, err
		}
		return []Stage{proj}, nil

	case "$addFields", "$set":
		d, err := asDoc(idx, name, value)
		if err != nil {
			return nil, err
		}
		return []Stage{AddFieldsStage{Fields: parseNamedExprs(idx, d)}}, nil

	case "$unset":
		// Desugars to a $project whose every field is an exclusion,
		// accepting either a single field name or an array of names.
		var names []string
		switch v := value.(type) {
		case string:
			names = []string{v}
		case bson.A:
			for _, el := range v {
				s, ok := el.(string)
				if !ok {
					return nil, StageArgError(idx, name, "$unset array must contain only strings")
				}
				names = append(names, s)
			}
		default:
			return nil, StageArgError(idx, name, "$unset requires a string or array of strings")
		}
		fields := make([]ProjectField, 0, len(names))
		for _, n := range names {
			fields = append(fields, ProjectField{Name: n, Include: false})
		}
		return []Stage{ProjectStage{Fields: fields}}, nil

	case "$group":
		d, err := asDoc(idx, name, value)
		if err != nil {
			return nil, err
		}
		g, err := parseGroup(idx, d)
		if err != nil {
			return nil, err
		}
		return []Stage{g}, nil

	case "$sort":
		d, err := asDoc(idx, name, value)
		if err != nil {
			return nil, err
		}
		return []Stage{SortStage{Keys: parseSortKeys(d)}}, nil

	case "$limit":
		n, err := asInt(idx, name, value)
		if err != nil {
			return nil, err
		}
		return []Stage{LimitStage{N: n}}, nil

	case "$skip":
		n, err := asInt(idx, name, value)
		if err != nil {
			return nil, err
		}
		return []Stage{SkipStage{N: n}}, nil

	case "$count":
		field, ok := value.(string)
		if !ok || field == "" {
			return nil, StageArgError(idx, name, "$count requires a non-empty string field name")
		}
		return []Stage{CountStage{Field: field}}, nil

	case "$sortByCount":
		// Desugars to {$group: {_id: <expr>, count: {$sum: 1}}}, {$sort: {count: -1}}.
		expr, err := parseExpression(idx, value)
		if err != nil {
			return nil, err
		}
		group := GroupStage{ID: expr, Accumulators: []NamedExpr{
			{Name: "count", Expr: OpCall{Op: "$sum", Args: []Expression{Literal{Value: int32(1)}}}},
		}}
		sortStage := SortStage{Keys: []SortKey{{Field: "count", Desc: true}}}
		return []Stage{group, sortStage}, nil

	case "$unwind":
		u, err := parseUnwind(idx, value)
		if err != nil {
			return nil, err
		}
		return []Stage{u}, nil

	case "$lookup":
		d, err := asDoc(idx, name, value)
		if err != nil {
			return nil, err
		}
		l, err := parseLookup(idx, d)
		if err != nil {
			return nil, err
		}
		return []Stage{l}, nil

	case "$graphLookup":
		d, err := asDoc(idx, name, value)
		if err != nil {
			return nil, err
		}
		g, err := parseGraphLookup(idx, d)
		if err != nil {
			return nil, err
		}
		return []Stage{g}, nil

	case "$unionWith":
		u, err := parseUnionWith(idx, value)
		if err != nil {
			return nil, err
		}
		return []Stage{u}, nil

	case "$facet":
		d, err := asDoc(idx, name, value)
		if err != nil {
			return nil, err
		}
		f, err := parseFacet(idx, d)
		if err != nil {
			return nil, err
		}
		return []Stage{f}, nil

	case "$bucket":
		d, err := asDoc(idx, name, value)
		if err != nil {
			return nil, err
		}
		b, err := parseBucket(idx, d)
		if err != nil {
			return nil, err
		}
		return []Stage{b}, nil

	case "$bucketAuto":
		d, err := asDoc(idx, name, value)
		if err != nil {
			return nil, err
		}
		b, err := parseBucketAuto(idx, d)
		if err != nil {
			return nil, err
		}
		return []Stage{b}, nil

	case "$replaceRoot":
		d, err := asDoc(idx, name, value)
		if err != nil {
			return nil, err
		}
		newRootVal := docLookup(d, "newRoot")
		if newRootVal == nil {
			return nil, StageArgError(idx, name, "$replaceRoot requires newRoot")
		}
		expr, err := parseExpression(idx, newRootVal)
		if err != nil {
			return nil, err
		}
		return []Stage{ReplaceRootStage{NewRoot: expr}}, nil

	case "$replaceWith":
		expr, err := parseExpression(idx, value)
		if err != nil {
			return nil, err
		}
		return []Stage{ReplaceRootStage{NewRoot: expr}}, nil

	case "$redact":
		expr, err := parseExpression(idx, value)
		if err != nil {
			return nil, err
		}
		return []Stage{RedactStage{Expr: expr}}, nil

	case "$sample":
		d, err := asDoc(idx, name, value)
		if err != nil {
			return nil, err
		}
		sizeVal := docLookup(d, "size")
		n, err := asInt(idx, name, sizeVal)
		if err != nil {
			return nil, err
		}
		return []Stage{SampleStage{Size: n}}, nil

	case "$setWindowFields":
		d, err := asDoc(idx, name, value)
		if err != nil {
			return nil, err
		}
		s, err := parseSetWindowFields(idx, d)
		if err != nil {
			return nil, err
		}
		return []Stage{s}, nil

	default:
		return nil, UnknownStage(idx, name)
	}
}

func asDoc(idx int, stage string, value interface{}) (bson.D, error) {
	d, ok := value.(bson.D)
	if !ok {
		return nil, StageArgError(idx, stage, "expected a document argument")
	}
	return d, nil
}

func asInt(idx int, stage string, value interface{}) (int64, error) {
	switch v := value.(type) {
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, StageArgError(idx, stage, "expected a numeric argument")
	}
}

// compareBoundaries orders two $bucket boundary values, numerically if
// both are numbers and lexicographically if both are strings; ok is
// false when the pair can't be compared (mixed or unsupported types),
// in which case the ascending check is skipped for that pair.
func compareBoundaries(a, b interface{}) (cmp int, ok bool) {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return strings.Compare(as, bs), true
		}
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func docLookup(d bson.D, key string) interface{} {
	for _, e := range d {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

// ---- $project ----

func parseProject(idx int, d bson.D) (ProjectStage, error) {
	var out ProjectStage
	for _, e := range d {
		if e.Key == "_id" {
			b := truthy(e.Value)
			out.IncludeID = &b
			continue
		}
		switch v := e.Value.(type) {
		case int32:
			out.Fields = append(out.Fields, ProjectField{Name: e.Key, Include: v != 0})
		case int64:
			out.Fields = append(out.Fields, ProjectField{Name: e.Key, Include: v != 0})
		case bool:
			out.Fields = append(out.Fields, ProjectField{Name: e.Key, Include: v})
		default:
			expr, err := parseExpression(idx, e.Value)
			if err != nil {
				return out, err
			}
			out.Fields = append(out.Fields, ProjectField{Name: e.Key, Include: true, Expr: expr})
		}
	}
	return out, nil
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int32:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}

// ---- $group ----

func parseGroup(idx int, d bson.D) (GroupStage, error) {
	var out GroupStage
	hasID := false
	for _, e := range d {
		if e.Key == "_id" {
			hasID = true
			expr, _ := parseExpression(idx, e.Value)
			out.ID = expr
			continue
		}
		expr, _ := parseExpression(idx, e.Value)
		out.Accumulators = append(out.Accumulators, NamedExpr{Name: e.Key, Expr: expr})
	}
	if !hasID {
		return GroupStage{}, StageArgError(idx, "$group", "_id is required")
	}
	return out, nil
}

func parseNamedExprs(idx int, d bson.D) []NamedExpr {
	out := make([]NamedExpr, 0, len(d))
	for _, e := range d {
		expr, _ := parseExpression(idx, e.Value)
		out = append(out, NamedExpr{Name: e.Key, Expr: expr})
	}
	return out
}

// ---- $sort ----

func parseSortKeys(d bson.D) []SortKey {
	out := make([]SortKey, 0, len(d))
	for _, e := range d {
		desc := false
		switch v := e.Value.(type) {
		case int32:
			desc = v < 0
		case int64:
			desc = v < 0
		case float64:
			desc = v < 0
		}
		out = append(out, SortKey{Field: e.Key, Desc: desc})
	}
	return out
}

// ---- $unwind ----

func parseUnwind(idx int, value interface{}) (UnwindStage, error) {
	switch v := value.(type) {
	case string:
		return UnwindStage{Path: trimFieldPrefix(v)}, nil
	case bson.D:
		pathVal := docLookup(v, "path")
		path, ok := pathVal.(string)
		if !ok {
			return UnwindStage{}, StageArgError(idx, "$unwind", "path must be a string")
		}
		u := UnwindStage{Path: trimFieldPrefix(path)}
		if iai := docLookup(v, "includeArrayIndex"); iai != nil {
			if s, ok := iai.(string); ok {
				u.IncludeArrayIndex = s
			}
		}
		if p := docLookup(v, "preserveNullAndEmptyArrays"); p != nil {
			if b, ok := p.(bool); ok {
				u.PreserveNullAndEmptyArrays = b
			}
		}
		return u, nil
	default:
		return UnwindStage{}, StageArgError(idx, "$unwind", "expected a string path or document")
	}
}

func trimFieldPrefix(s string) string {
	if len(s) > 0 && s[0] == '$' {
		return s[1:]
	}
	return s
}

// ---- $lookup ----

func parseLookup(idx int, d bson.D) (LookupStage, error) {
	var l LookupStage
	for _, e := range d {
		switch e.Key {
		case "from":
			l.From, _ = e.Value.(string)
		case "localField":
			l.LocalField, _ = e.Value.(string)
		case "foreignField":
			l.ForeignField, _ = e.Value.(string)
		case "as":
			l.As, _ = e.Value.(string)
		case "let":
			if letDoc, ok := e.Value.(bson.D); ok {
				l.Let = parseNamedExprs(idx, letDoc)
			}
		case "pipeline":
			sub, ok := e.Value.(bson.A)
			if !ok {
				return l, StageArgError(idx, "$lookup", "pipeline must be an array")
			}
			p, err := parsePipelineArray(idx, sub)
			if err != nil {
				return l, err
			}
			l.Pipeline = &p
		}
	}
	if l.From == "" || l.As == "" {
		return l, StageArgError(idx, "$lookup", "from and as are required")
	}
	return l, nil
}

func parsePipelineArray(idx int, arr bson.A) (Pipeline, error) {
	var out Pipeline
	for _, el := range arr {
		sd, ok := el.(bson.D)
		if !ok || len(sd) != 1 {
			return out, StageArgError(idx, "pipeline", "nested pipeline stage must be a single-key document")
		}
		stages, err := parseStage(idx, sd[0].Key, sd[0].Value)
		if err != nil {
			return out, err
		}
		out.Stages = append(out.Stages, stages...)
	}
	return out, nil
}

// ---- $graphLookup ----

func parseGraphLookup(idx int, d bson.D) (GraphLookupStage, error) {
	var g GraphLookupStage
	for _, e := range d {
		switch e.Key {
		case "from":
			g.From, _ = e.Value.(string)
		case "startWith":
			g.StartWith, _ = parseExpression(idx, e.Value)
		case "connectFromField":
			g.ConnectFromField, _ = e.Value.(string)
		case "connectToField":
			g.ConnectToField, _ = e.Value.(string)
		case "as":
			g.As, _ = e.Value.(string)
		case "maxDepth":
			n, err := asInt(idx, "$graphLookup", e.Value)
			if err == nil {
				g.MaxDepth = &n
			}
		case "depthField":
			g.DepthField, _ = e.Value.(string)
		case "restrictSearchWithMatch":
			if md, ok := e.Value.(bson.D); ok {
				g.RestrictSearchWithMatch, _ = parsePredicate(idx, md)
			}
		}
	}
	if g.From == "" || g.As == "" || g.ConnectFromField == "" || g.ConnectToField == "" {
		return g, StageArgError(idx, "$graphLookup", "from, connectFromField, connectToField, and as are required")
	}
	return g, nil
}

// ---- $unionWith ----

func parseUnionWith(idx int, value interface{}) (UnionWithStage, error) {
	switch v := value.(type) {
	case string:
		return UnionWithStage{Coll: v}, nil
	case bson.D:
		coll, _ := docLookup(v, "coll").(string)
		if coll == "" {
			return UnionWithStage{}, StageArgError(idx, "$unionWith", "coll is required")
		}
		u := UnionWithStage{Coll: coll}
		if pv := docLookup(v, "pipeline"); pv != nil {
			arr, ok := pv.(bson.A)
			if !ok {
				return u, StageArgError(idx, "$unionWith", "pipeline must be an array")
			}
			p, err := parsePipelineArray(idx, arr)
			if err != nil {
				return u, err
			}
			u.Pipeline = &p
		}
		return u, nil
	default:
		return UnionWithStage{}, StageArgError(idx, "$unionWith", "expected a string collection name or document")
	}
}

// ---- $facet ----

func parseFacet(idx int, d bson.D) (FacetStage, error) {
	var f FacetStage
	for _, e := range d {
		arr, ok := e.Value.(bson.A)
		if !ok {
			return f, StageArgError(idx, "$facet", fmt.Sprintf("facet %q must be a pipeline array", e.Key))
		}
		p, err := parsePipelineArray(idx, arr)
		if err != nil {
			return f, err
		}
		f.Facets = append(f.Facets, FacetEntry{Name: e.Key, Pipeline: p})
	}
	return f, nil
}

// ---- $bucket / $bucketAuto ----

func parseBucket(idx int, d bson.D) (BucketStage, error) {
	var b BucketStage
	for _, e := range d {
		switch e.Key {
		case "groupBy":
			b.GroupBy, _ = parseExpression(idx, e.Value)
		case "boundaries":
			arr, ok := e.Value.(bson.A)
			if !ok {
				return b, StageArgError(idx, "$bucket", "boundaries must be an array")
			}
			var prev interface{}
			for i, bv := range arr {
				expr, _ := parseExpression(idx, bv)
				b.Boundaries = append(b.Boundaries, expr)
				if i > 0 {
					if cmp, ok := compareBoundaries(prev, bv); ok && cmp >= 0 {
						return b, StageArgError(idx, "$bucket", "boundaries not ascending")
					}
				}
				prev = bv
			}
		case "default":
			b.Default, _ = parseExpression(idx, e.Value)
			b.HasDefault = true
		case "output":
			if od, ok := e.Value.(bson.D); ok {
				b.Accumulator = parseNamedExprs(idx, od)
			}
		}
	}
	if b.GroupBy == nil || len(b.Boundaries) < 2 {
		return b, StageArgError(idx, "$bucket", "groupBy and at least two boundaries are required")
	}
	if len(b.Accumulator) == 0 {
		b.Accumulator = []NamedExpr{{Name: "count", Expr: OpCall{Op: "$sum", Args: []Expression{Literal{Value: int32(1)}}}}}
	}
	return b, nil
}

func parseBucketAuto(idx int, d bson.D) (BucketAutoStage, error) {
	var b BucketAutoStage
	for _, e := range d {
		switch e.Key {
		case "groupBy":
			b.GroupBy, _ = parseExpression(idx, e.Value)
		case "buckets":
			n, err := asInt(idx, "$bucketAuto", e.Value)
			if err != nil {
				return b, err
			}
			b.Buckets = n
		case "granularity":
			b.Granularity, _ = e.Value.(string)
		case "output":
			if od, ok := e.Value.(bson.D); ok {
				b.Accumulator = parseNamedExprs(idx, od)
			}
		}
	}
	if b.GroupBy == nil || b.Buckets <= 0 {
		return b, StageArgError(idx, "$bucketAuto", "groupBy and a positive buckets count are required")
	}
	if len(b.Accumulator) == 0 {
		b.Accumulator = []NamedExpr{{Name: "count", Expr: OpCall{Op: "$sum", Args: []Expression{Literal{Value: int32(1)}}}}}
	}
	return b, nil
}

// ---- $setWindowFields ----

func parseSetWindowFields(idx int, d bson.D) (SetWindowFieldsStage, error) {
	var s SetWindowFieldsStage
	for _, e := range d {
		switch e.Key {
		case "partitionBy":
			s.PartitionBy, _ = parseExpression(idx, e.Value)
		case "sortBy":
			if sd, ok := e.Value.(bson.D); ok {
				s.SortBy = parseSortKeys(sd)
			}
		case "output":
			od, ok := e.Value.(bson.D)
			if !ok {
				return s, StageArgError(idx, "$setWindowFields", "output must be a document")
			}
			for _, oe := range od {
				accDoc, ok := oe.Value.(bson.D)
				if !ok {
					return s, StageArgError(idx, "$setWindowFields", fmt.Sprintf("output %q must be a document", oe.Key))
				}
				wo := WindowOutput{Name: oe.Key}
				var rest bson.D
				for _, fe := range accDoc {
					if fe.Key == "window" {
						wd, ok := fe.Value.(bson.D)
						if ok && len(wd) == 1 {
							bt := wd[0].Key
							bounds, ok := wd[0].Value.(bson.A)
							if ok && len(bounds) == 2 {
								lo, _ := parseWindowBound(idx, bounds[0])
								hi, _ := parseWindowBound(idx, bounds[1])
								wo.Window = &WindowSpec{BoundsType: bt, Lower: lo, Upper: hi}
							}
						}
						continue
					}
					rest = append(rest, fe)
				}
				acc, err := parseExpression(idx, bson.D{{Key: rest[0].Key, Value: rest[0].Value}})
				if err != nil {
					return s, err
				}
				wo.Acc = acc
				s.Output = append(s.Output, wo)
			}
		}
	}
	return s, nil
}

func parseWindowBound(idx int, v interface{}) (Expression, error) {
	if s, ok := v.(string); ok && s == "unbounded" {
		return nil, nil
	}
	if s, ok := v.(string); ok && s == "current" {
		return Literal{Value: "current"}, nil
	}
	return parseExpression(idx, v)
}
