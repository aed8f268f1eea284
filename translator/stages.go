package translator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/squall-chua/mongora"
)

// builder threads the mutable pieces a pipeline compile needs beyond the
// per-expression ctx: the running Plan, the collection's base alias, and
// a record of the immediately preceding stage (the fusion rules below
// are keyed on stage adjacency).
type builder struct {
	settings   *Settings
	collection string
	baseAlias  string
	root       ctx

	plan *Plan

	// pendingSort holds a $sort stage's keys for one stage of lookahead:
	// a following $group consumes them (as the KEEP order for
	// $first/$last); any other stage flushes them into a Sort node, which
	// the emitter merges with a directly following $limit/$skip.
	pendingSort []mongora.SortKey

	// lastLookupAs/lastLookupAlias record the most recent $lookup's "as"
	// field and foreign alias so an immediately following $unwind on that
	// same path can degenerate the LEFT JOIN into an INNER JOIN instead of
	// adding a redundant JSON_TABLE unnest over a one-row array.
	lastLookupAs    string
	lastLookupAlias string
}

func newBuilder(settings *Settings, collection string) *builder {
	alias := "base"
	b := &builder{settings: settings, collection: collection, baseAlias: alias}
	b.plan = NewScan(collection, alias)
	b.root = rootCtx(settings, alias)
	return b
}

// Compile runs every stage of p through the builder, applying fusion as
// it goes, and returns the final Plan.
func (b *builder) Compile(p mongora.Pipeline) (*Plan, error) {
	for i, stage := range p.Stages {
		b.root.state.stageIdx = i
		if err := b.applyStage(i, stage); err != nil {
			return nil, err
		}
	}
	b.flushPendingSort()
	return b.plan, nil
}

func (b *builder) ctx() ctx { return b.root.withRowAlias(b.currentAlias()) }

// currentAlias is the alias subsequent field references resolve
// against: the base scan alias, or an unnest/join alias once one of
// those stages has run.
func (b *builder) currentAlias() string {
	return findRowAlias(b.plan, b.baseAlias)
}

func findRowAlias(p *Plan, fallback string) string {
	switch p.Kind {
	case PlanScan:
		return p.Alias
	case PlanUnnest:
		return p.UnnestAlias
	case PlanJoin:
		return p.RightName
	case PlanAggregate:
		if p.OutAlias != "" {
			return p.OutAlias
		}
		return fallback
	case PlanWindow:
		if p.OutAlias != "" {
			return p.OutAlias
		}
		return findRowAlias(p.Child, fallback)
	case PlanFilter, PlanSort, PlanLimitOffset:
		return findRowAlias(p.Child, fallback)
	default:
		return fallback
	}
}

// enterOutputScope rebinds the builder's ctx so that downstream field
// compilation addresses a shape-changing stage's declared output
// columns by name ("#"-prefixed bindings, checked first by
// compileFieldRef) instead of re-deriving them from the original JSON
// document. keepData, when true, preserves JSON field extraction
// against the new alias's own "data" passthrough column (true for
// $setWindowFields, which retains the full document; false for $group,
// which — like MongoDB itself — discards everything but _id and the
// declared accumulators).
func (b *builder) enterOutputScope(alias string, outputs map[string]string, keepData bool) {
	next := ctx{rowAlias: alias, bindings: outputs, state: b.root.state}
	if keepData {
		next.dataExpr = alias + ".data"
	}
	b.root = next
}

func (b *builder) flushPendingSort() {
	if len(b.pendingSort) == 0 {
		return
	}
	keys, err := compileOrderByKeysAsSortKeys(b.ctx(), b.pendingSort)
	if err == nil {
		b.plan = &Plan{Kind: PlanSort, Child: b.plan, SortKeys: keys}
	}
	b.pendingSort = nil
}

func compileOrderByKeysAsSortKeys(c ctx, keys []mongora.SortKey) ([]SortKey, error) {
	out := make([]SortKey, 0, len(keys))
	for _, k := range keys {
		sql, _, err := compileFieldRef(c, k.Field)
		if err != nil {
			return nil, err
		}
		out = append(out, SortKey{Expr: sql, Desc: k.Desc})
	}
	return out, nil
}

func (b *builder) applyStage(idx int, stage mongora.Stage) error {
	// A pending $sort is left for a following $group to consume; any
	// other stage flushes it into a Sort node first.
	if _, isGroup := stage.(mongora.GroupStage); !isGroup && len(b.pendingSort) > 0 {
		b.flushPendingSort()
	}

	_, isLookup := stage.(mongora.LookupStage)
	_, isUnwind := stage.(mongora.UnwindStage)

	var err error
	switch s := stage.(type) {
	case mongora.MatchStage:
		err = b.applyMatch(s)
	case mongora.ProjectStage:
		err = b.applyProject(s)
	case mongora.AddFieldsStage:
		err = b.applyAddFields(s)
	case mongora.GroupStage:
		err = b.applyGroup(s)
	case mongora.SortStage:
		b.pendingSort = s.Keys
	case mongora.LimitStage:
		err = b.applyLimitOffset(&s.N, nil)
	case mongora.SkipStage:
		err = b.applyLimitOffset(nil, &s.N)
	case mongora.CountStage:
		err = b.applyCount(s)
	case mongora.UnwindStage:
		err = b.applyUnwind(s)
	case mongora.LookupStage:
		err = b.applyLookup(s)
	case mongora.FacetStage:
		err = b.applyFacet(s)
	case mongora.ReplaceRootStage:
		err = b.applyReplaceRoot(s)
	case mongora.SampleStage:
		err = b.applySample(s)
	case mongora.BucketStage:
		err = b.applyBucket(s)
	case mongora.BucketAutoStage:
		err = b.applyBucketAuto(s)
	case mongora.SetWindowFieldsStage:
		err = b.applySetWindowFields(s)
	case mongora.UnionWithStage:
		err = b.applyUnionWith(s)
	case mongora.GraphLookupStage:
		err = b.applyGraphLookup(s)
	case mongora.RedactStage:
		err = b.applyRedact(s)
	default:
		err = mongora.UnknownStage(idx, stage.StageName())
	}
	if !isLookup && !isUnwind {
		b.lastLookupAs, b.lastLookupAlias = "", ""
	}
	return err
}

// ---- $match ----

func (b *builder) applyMatch(s mongora.MatchStage) error {
	sql, err := compilePredicate(b.ctx(), s.Predicate)
	if err != nil {
		return err
	}
	// Successive $match stages AND-combine.
	if b.plan.Kind == PlanFilter {
		b.settings.Logger.WithField("stage", b.root.state.stageIdx).Debug("folding $match into the preceding $match's predicate")
		b.plan.Predicate = fmt.Sprintf("(%s AND %s)", b.plan.Predicate, sql)
		return nil
	}
	b.plan = &Plan{Kind: PlanFilter, Child: b.plan, Predicate: sql}
	return nil
}

// ---- $project / $addFields ----

func (b *builder) applyProject(s mongora.ProjectStage) error {
	c := b.ctx()
	items := make([]SelectItem, 0, len(s.Fields)+1)
	if s.IncludeID == nil || *s.IncludeID {
		items = append(items, SelectItem{Alias: "id", Expr: c.rowAlias + ".id"})
	}
	for _, f := range s.Fields {
		if !f.Include && f.Expr == nil {
			continue
		}
		if f.Expr != nil {
			sql, _, err := compileExpr(c, f.Expr)
			if err != nil {
				return err
			}
			items = append(items, SelectItem{Alias: f.Name, Expr: sql})
			continue
		}
		sql, _, err := compileFieldRef(c, f.Name)
		if err != nil {
			return err
		}
		items = append(items, SelectItem{Alias: f.Name, Expr: sql})
	}
	b.plan = &Plan{Kind: PlanProject, Child: b.plan, Select: items}
	return nil
}

func (b *builder) applyAddFields(s mongora.AddFieldsStage) error {
	c := b.ctx()
	base := currentSelect(b.plan, c.rowAlias)
	for _, f := range s.Fields {
		sql, _, err := compileExpr(c, f.Expr)
		if err != nil {
			return err
		}
		base = appendOrReplace(base, SelectItem{Alias: f.Name, Expr: sql})
	}
	b.plan = &Plan{Kind: PlanProject, Child: b.plan, Select: base}
	return nil
}

func currentSelect(p *Plan, alias string) []SelectItem {
	if p.Kind == PlanProject {
		out := make([]SelectItem, len(p.Select))
		copy(out, p.Select)
		return out
	}
	return defaultSelect(alias)
}

func appendOrReplace(items []SelectItem, it SelectItem) []SelectItem {
	for i, existing := range items {
		if existing.Alias == it.Alias {
			items[i] = it
			return items
		}
	}
	return append(items, it)
}

// ---- $group ----

func (b *builder) applyGroup(s mongora.GroupStage) error {
	c := b.ctx()
	groupKeys, err := compileGroupID(c, s.ID)
	if err != nil {
		return err
	}
	aggs := make([]SelectItem, 0, len(s.Accumulators))
	for _, acc := range s.Accumulators {
		var sql string
		if len(b.pendingSort) > 0 && (accOp(acc.Expr) == "$first" || accOp(acc.Expr) == "$last") {
			b.settings.Logger.WithField("stage", b.root.state.stageIdx).Debug("consuming preceding $sort into a KEEP (DENSE_RANK ...) accumulator")
			sql, err = compileKeepFirstLast(c, acc.Expr, b.pendingSort)
		} else if isCountSum1(acc.Expr) {
			sql = "COUNT(*)"
		} else {
			sql, err = compileAccumulator(c, acc.Expr)
		}
		if err != nil {
			return err
		}
		aggs = append(aggs, SelectItem{Alias: acc.Name, Expr: sql})
	}
	// A $sort immediately before $group is consumed here, never
	// re-emitted as a separate ORDER BY: it orders any $first/$last KEEP
	// accumulators above and is otherwise dropped.
	b.pendingSort = nil

	hasGroupBy := !isNullLiteralExpr(s.ID)
	alias := b.root.state.nextAlias("g")
	b.plan = &Plan{
		Kind:       PlanAggregate,
		Child:      b.plan,
		GroupKeys:  groupKeys,
		Aggregates: aggs,
		HasGroupBy: hasGroupBy,
		OutAlias:   alias,
	}

	outputs := make(map[string]string, len(groupKeys)+len(aggs))
	if len(groupKeys) == 1 && groupKeys[0].Alias == "grp_id" {
		outputs["#_id"] = alias + ".grp_id"
	} else {
		for _, k := range groupKeys {
			outputs["#_id."+k.Alias] = alias + "." + k.Alias
		}
	}
	for _, a := range aggs {
		outputs["#"+a.Alias] = alias + "." + a.Alias
	}
	// $group discards every field but _id and the declared accumulators,
	// so downstream stages resolve names only through these bindings,
	// never by re-extracting JSON from the original document.
	b.enterOutputScope(alias, outputs, false)
	return nil
}

func accOp(e mongora.Expression) string {
	if o, ok := e.(mongora.OpCall); ok {
		return o.Op
	}
	return ""
}

func isNullLiteralExpr(e mongora.Expression) bool {
	lit, ok := e.(mongora.Literal)
	return ok && lit.Value == nil
}

// compileGroupID compiles _id into one or more GROUP BY keys. A plain
// object literal ($group._id: {a: "$x", b: "$y"}) produces one key per
// field, matching MongoDB's composite-key grouping; any other expression
// produces a single key aliased "grp_id".
func compileGroupID(c ctx, id mongora.Expression) ([]SelectItem, error) {
	if o, ok := id.(mongora.OpCall); ok && o.Op == "$object" {
		keys := make([]string, 0, len(o.Named))
		for k := range o.Named {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]SelectItem, 0, len(keys))
		for _, k := range keys {
			sql, _, err := compileExpr(c, o.Named[k])
			if err != nil {
				return nil, err
			}
			items = append(items, SelectItem{Alias: k, Expr: sql})
		}
		return items, nil
	}
	sql, _, err := compileExpr(c, id)
	if err != nil {
		return nil, err
	}
	return []SelectItem{{Alias: "grp_id", Expr: sql}}, nil
}

// ---- $limit / $skip ----

func (b *builder) applyLimitOffset(limit, offset *int64) error {
	if b.plan.Kind == PlanLimitOffset {
		if limit != nil {
			b.plan.Limit = limit
		}
		if offset != nil {
			b.plan.Offset = offset
		}
		return nil
	}
	b.plan = &Plan{Kind: PlanLimitOffset, Child: b.plan, Limit: limit, Offset: offset}
	return nil
}

// ---- $count ----

func (b *builder) applyCount(s mongora.CountStage) error {
	b.plan = &Plan{
		Kind:       PlanAggregate,
		Child:      b.plan,
		Aggregates: []SelectItem{{Alias: s.Field, Expr: "COUNT(*)"}},
		HasGroupBy: false,
	}
	return nil
}

// ---- $unwind ----

func (b *builder) applyUnwind(s mongora.UnwindStage) error {
	// $unwind immediately after the $lookup that produced this same path
	// degenerates the preceding LEFT JOIN into an INNER JOIN rather than
	// adding a redundant unnest over what is already a one-row-per-match
	// join result.
	if s.Path == b.lastLookupAs && b.plan.Kind == PlanJoin && b.plan.RightName == b.lastLookupAlias {
		b.settings.Logger.WithField("stage", b.root.state.stageIdx).Debug("degenerating $lookup+$unwind into a direct join")
		if !s.PreserveNullAndEmptyArrays {
			b.plan.JoinKind = JoinInner
		}
		b.lastLookupAs, b.lastLookupAlias = "", ""
		return nil
	}

	alias := b.root.state.nextAlias(unwindAliasBase(s.Path))
	unnest := &Plan{
		Kind:               PlanUnnest,
		Child:              b.plan,
		UnnestPath:         s.Path,
		UnnestAlias:        alias,
		UnnestPreserveNull: s.PreserveNullAndEmptyArrays,
	}
	b.plan = unnest
	b.root = b.root.withBinding("."+s.Path, alias+".val")
	return nil
}

func unwindAliasBase(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = path[:i]
	}
	if len(path) == 0 {
		return "u"
	}
	return strings.ToLower(path[:1])
}

// ---- $lookup ----

func (b *builder) applyLookup(s mongora.LookupStage) error {
	foreignAlias := b.root.state.nextAlias(strings.ToLower(firstLetterOr(s.From, "f")))
	right := NewScan(s.From, foreignAlias)
	onLocal, _, err := compileFieldRef(b.ctx(), s.LocalField)
	if err != nil {
		return err
	}
	onForeign, _, err := compileFieldRef(b.root.withRowAlias(foreignAlias), s.ForeignField)
	if err != nil {
		return err
	}
	join := &Plan{
		Kind:      PlanJoin,
		JoinKind:  JoinLeft,
		Left:      b.plan,
		Right:     right,
		JoinOn:    fmt.Sprintf("%s = %s", onLocal, onForeign),
		RightName: foreignAlias,
	}
	b.plan = join
	b.root = b.root.withBinding("."+s.As, foreignAlias+".data")
	b.lastLookupAs = s.As
	b.lastLookupAlias = foreignAlias
	return nil
}

func firstLetterOr(s, fallback string) string {
	if len(s) == 0 {
		return fallback
	}
	return s[:1]
}

// ---- $facet ----

func (b *builder) applyFacet(s mongora.FacetStage) error {
	upstream := b.plan
	facets := make([]FacetPlan, 0, len(s.Facets))
	for _, f := range s.Facets {
		sub := &builder{settings: b.settings, collection: b.collection, baseAlias: b.baseAlias}
		sub.plan = upstream
		sub.root = rootCtx(b.settings, b.baseAlias)
		subPlan, err := sub.Compile(f.Pipeline)
		if err != nil {
			return err
		}
		facets = append(facets, FacetPlan{Name: f.Name, Plan: subPlan})
	}
	b.plan = &Plan{Kind: PlanFacet, Facets: facets}
	return nil
}

// ---- $replaceRoot ----

func (b *builder) applyReplaceRoot(s mongora.ReplaceRootStage) error {
	c := b.ctx()
	obj, ok := s.NewRoot.(mongora.OpCall)
	if ok && obj.Op == "$mergeObjects" {
		items := make([]SelectItem, 0)
		for _, arg := range obj.Args {
			sub, ok := arg.(mongora.OpCall)
			if !ok || sub.Op != "$object" {
				return &mongora.ExpressionError{StageIndex: c.stageErr(), Operator: "$mergeObjects", Detail: "operands must be object literals"}
			}
			keys := namedKeysSorted(sub.Named)
			for _, k := range keys {
				sql, _, err := compileExpr(c, sub.Named[k])
				if err != nil {
					return err
				}
				items = appendOrReplace(items, SelectItem{Alias: k, Expr: sql})
			}
		}
		b.plan = &Plan{Kind: PlanProject, Child: b.plan, Select: items}
		return nil
	}
	if ok && obj.Op == "$object" {
		keys := namedKeysSorted(obj.Named)
		items := make([]SelectItem, 0, len(keys))
		for _, k := range keys {
			sql, _, err := compileExpr(c, obj.Named[k])
			if err != nil {
				return err
			}
			items = append(items, SelectItem{Alias: k, Expr: sql})
		}
		b.plan = &Plan{Kind: PlanProject, Child: b.plan, Select: items}
		return nil
	}
	sql, _, err := compileExpr(c, s.NewRoot)
	if err != nil {
		return err
	}
	b.plan = &Plan{Kind: PlanProject, Child: b.plan, Select: []SelectItem{{Alias: "data", Expr: sql}}}
	return nil
}

func namedKeysSorted(m map[string]mongora.Expression) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ---- $sample ----

func (b *builder) applySample(s mongora.SampleStage) error {
	b.plan = &Plan{Kind: PlanSort, Child: b.plan, SortKeys: []SortKey{{Expr: "DBMS_RANDOM.VALUE"}}}
	n := s.Size
	b.plan = &Plan{Kind: PlanLimitOffset, Child: b.plan, Limit: &n}
	return nil
}

// ---- $bucket / $bucketAuto ----

func (b *builder) applyBucket(s mongora.BucketStage) error {
	c := b.ctx()
	groupBySQL, _, err := compileExpr(c.withNumericHint(true), s.GroupBy)
	if err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString("CASE")
	for i := 0; i < len(s.Boundaries)-1; i++ {
		lo, _, err := compileExpr(c.withNumericHint(true), s.Boundaries[i])
		if err != nil {
			return err
		}
		hi, _, err := compileExpr(c.withNumericHint(true), s.Boundaries[i+1])
		if err != nil {
			return err
		}
		sb.WriteString(fmt.Sprintf(" WHEN %s >= %s AND %s < %s THEN %s", groupBySQL, lo, groupBySQL, hi, lo))
	}
	if s.HasDefault {
		def, _, err := compileExpr(c, s.Default)
		if err != nil {
			return err
		}
		sb.WriteString(" ELSE " + def)
	}
	sb.WriteString(" END")
	caseExpr := sb.String()

	if !s.HasDefault {
		lo, _, _ := compileExpr(c.withNumericHint(true), s.Boundaries[0])
		hi, _, _ := compileExpr(c.withNumericHint(true), s.Boundaries[len(s.Boundaries)-1])
		pred := fmt.Sprintf("(%s >= %s AND %s < %s)", groupBySQL, lo, groupBySQL, hi)
		if b.plan.Kind == PlanFilter {
			b.plan.Predicate = fmt.Sprintf("(%s AND %s)", b.plan.Predicate, pred)
		} else {
			b.plan = &Plan{Kind: PlanFilter, Child: b.plan, Predicate: pred}
		}
	}

	aggs := make([]SelectItem, 0, len(s.Accumulator))
	for _, acc := range s.Accumulator {
		var sql string
		if isCountSum1(acc.Expr) {
			sql = "COUNT(*)"
		} else {
			sql, err = compileAccumulator(c, acc.Expr)
			if err != nil {
				return err
			}
		}
		aggs = append(aggs, SelectItem{Alias: acc.Name, Expr: sql})
	}
	alias := b.root.state.nextAlias("b")
	b.plan = &Plan{
		Kind:       PlanAggregate,
		Child:      b.plan,
		GroupKeys:  []SelectItem{{Alias: "_id", Expr: caseExpr}},
		Aggregates: aggs,
		HasGroupBy: true,
		OutAlias:   alias,
	}

	outputs := make(map[string]string, len(aggs)+1)
	outputs["#_id"] = alias + "._id"
	for _, a := range aggs {
		outputs["#"+a.Alias] = alias + "." + a.Alias
	}
	b.enterOutputScope(alias, outputs, false)
	return nil
}

func (b *builder) applyBucketAuto(s mongora.BucketAutoStage) error {
	c := b.ctx()
	groupBySQL, _, err := compileExpr(c.withNumericHint(true), s.GroupBy)
	if err != nil {
		return err
	}
	ntileExpr := fmt.Sprintf("NTILE(%d) OVER (ORDER BY %s)", s.Buckets, groupBySQL)
	b.plan = &Plan{Kind: PlanWindow, Child: b.plan, WindowOutputs: []WindowItem{{Alias: "bucket_id", Expr: ntileExpr}}}

	aggs := make([]SelectItem, 0, len(s.Accumulator))
	for _, acc := range s.Accumulator {
		var sql string
		if isCountSum1(acc.Expr) {
			sql = "COUNT(*)"
		} else {
			sql, err = compileAccumulator(c, acc.Expr)
			if err != nil {
				return err
			}
		}
		aggs = append(aggs, SelectItem{Alias: acc.Name, Expr: sql})
	}
	alias := b.root.state.nextAlias("b")
	b.plan = &Plan{
		Kind:       PlanAggregate,
		Child:      b.plan,
		GroupKeys:  []SelectItem{{Alias: "bucket_id", Expr: "bucket_id"}},
		Aggregates: aggs,
		HasGroupBy: true,
		OutAlias:   alias,
	}

	outputs := make(map[string]string, len(aggs)+1)
	outputs["#_id"] = alias + ".bucket_id"
	for _, a := range aggs {
		outputs["#"+a.Alias] = alias + "." + a.Alias
	}
	b.enterOutputScope(alias, outputs, false)
	return nil
}

// ---- $setWindowFields ----

func (b *builder) applySetWindowFields(s mongora.SetWindowFieldsStage) error {
	c := b.ctx()
	var partitionSQL string
	if s.PartitionBy != nil {
		var err error
		partitionSQL, _, err = compileExpr(c, s.PartitionBy)
		if err != nil {
			return err
		}
	}
	orderBy, err := compileOrderByKeys(c, s.SortBy)
	if err != nil {
		return err
	}
	items := make([]WindowItem, 0, len(s.Output))
	for _, out := range s.Output {
		expr, err := compileWindowFunc(c, out.Acc)
		if err != nil {
			return err
		}
		over := "OVER ("
		if partitionSQL != "" {
			over += "PARTITION BY " + partitionSQL
		}
		if orderBy != "" {
			if partitionSQL != "" {
				over += " "
			}
			over += "ORDER BY " + orderBy
		}
		if out.Window != nil {
			frame, err := compileWindowFrame(c, out.Window)
			if err != nil {
				return err
			}
			over += " " + frame
		}
		over += ")"
		items = append(items, WindowItem{Alias: out.Name, Expr: expr + " " + over})
	}
	alias := b.root.state.nextAlias("w")
	b.plan = &Plan{Kind: PlanWindow, Child: b.plan, WindowOutputs: items, OutAlias: alias}

	// $setWindowFields keeps every existing field alongside its new
	// computed columns, so the new alias's own "data" column still
	// serves ordinary JSON extraction; only the window outputs need
	// explicit name bindings.
	outputs := make(map[string]string, len(items))
	for _, it := range items {
		outputs["#"+it.Alias] = alias + "." + it.Alias
	}
	b.enterOutputScope(alias, outputs, true)
	return nil
}

func compileWindowFunc(c ctx, e mongora.Expression) (string, error) {
	o, ok := e.(mongora.OpCall)
	if !ok {
		return "", &mongora.ExpressionError{StageIndex: c.stageErr(), Operator: "$setWindowFields", Detail: "output must be an operator call"}
	}
	switch o.Op {
	case "$rank":
		return "RANK()", nil
	case "$denseRank":
		return "DENSE_RANK()", nil
	case "$documentNumber":
		return "ROW_NUMBER()", nil
	case "$sum", "$avg", "$min", "$max":
		if len(o.Args) != 1 {
			return "", mongora.OperatorArityError(c.stageErr(), o.Op, len(o.Args), 1)
		}
		arg, _, err := compileExpr(c.withNumericHint(true), o.Args[0])
		if err != nil {
			return "", err
		}
		fn := map[string]string{"$sum": "SUM", "$avg": "AVG", "$min": "MIN", "$max": "MAX"}[o.Op]
		return fmt.Sprintf("%s(%s)", fn, arg), nil
	default:
		return c.unsupported(o.Op)
	}
}

func compileWindowFrame(c ctx, w *mongora.WindowSpec) (string, error) {
	lo, err := compileFrameBound(c, w.Lower, true)
	if err != nil {
		return "", err
	}
	hi, err := compileFrameBound(c, w.Upper, false)
	if err != nil {
		return "", err
	}
	kind := "ROWS"
	if w.BoundsType == "range" {
		kind = "RANGE"
	}
	return fmt.Sprintf("%s BETWEEN %s AND %s", kind, lo, hi), nil
}

func compileFrameBound(c ctx, e mongora.Expression, lowerSide bool) (string, error) {
	if e == nil {
		if lowerSide {
			return "UNBOUNDED PRECEDING", nil
		}
		return "UNBOUNDED FOLLOWING", nil
	}
	if lit, ok := e.(mongora.Literal); ok {
		if s, ok := lit.Value.(string); ok && s == "current" {
			return "CURRENT ROW", nil
		}
		n, numOK := toInt(lit.Value)
		if numOK {
			if n < 0 {
				return fmt.Sprintf("%d PRECEDING", -n), nil
			}
			if n > 0 {
				return fmt.Sprintf("%d FOLLOWING", n), nil
			}
			return "CURRENT ROW", nil
		}
	}
	return "CURRENT ROW", nil
}

// ---- $unionWith ----

func (b *builder) applyUnionWith(s mongora.UnionWithStage) error {
	var foreign *Plan
	if s.Pipeline != nil {
		sub := newBuilder(b.settings, s.Coll)
		fp, err := sub.Compile(*s.Pipeline)
		if err != nil {
			return err
		}
		foreign = fp
	} else {
		foreign = NewScan(s.Coll, strings.ToLower(firstLetterOr(s.Coll, "u")))
	}
	b.plan = &Plan{Kind: PlanSetOp, SetOpKind: SetOpUnionAll, Children: []*Plan{b.plan, foreign}}
	return nil
}

// ---- $graphLookup ----

func (b *builder) applyGraphLookup(s mongora.GraphLookupStage) error {
	foreignAlias := b.root.state.nextAlias(strings.ToLower(firstLetterOr(s.From, "g")))
	right := NewScan(s.From, foreignAlias)
	startSQL, _, err := compileExpr(b.ctx(), s.StartWith)
	if err != nil {
		return err
	}
	connectToSQL, _, err := compileFieldRef(b.root.withRowAlias(foreignAlias), s.ConnectToField)
	if err != nil {
		return err
	}
	on := fmt.Sprintf("%s = %s", startSQL, connectToSQL)
	if s.RestrictSearchWithMatch != nil {
		restrict, err := compilePredicate(b.root.withRowAlias(foreignAlias), s.RestrictSearchWithMatch)
		if err != nil {
			return err
		}
		on = fmt.Sprintf("(%s) AND (%s)", on, restrict)
	}
	b.plan = &Plan{
		Kind:      PlanJoin,
		JoinKind:  JoinLateral,
		Left:      b.plan,
		Right:     right,
		JoinOn:    on,
		RightName: foreignAlias,
	}
	b.root = b.root.withBinding("."+s.As, foreignAlias+".data")
	return nil
}

// ---- $redact ----

func (b *builder) applyRedact(s mongora.RedactStage) error {
	// Document-level only: $$KEEP/$$DESCEND pass the row through, $$PRUNE
	// filters it out. True per-field descent is a documented gap
	// since it requires re-projecting arbitrary sub-document
	// shapes, which this plan model does not represent.
	c := b.ctx()
	sql, _, err := compileExpr(c, s.Expr)
	if err != nil {
		return err
	}
	pred := fmt.Sprintf("(%s) <> %s", sql, redactPruneSQL)
	if b.plan.Kind == PlanFilter {
		b.plan.Predicate = fmt.Sprintf("(%s AND %s)", b.plan.Predicate, pred)
		return nil
	}
	b.plan = &Plan{Kind: PlanFilter, Child: b.plan, Predicate: pred}
	return nil
}
