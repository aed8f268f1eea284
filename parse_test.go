package mongora

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Match(t *testing.T) {
	p, err := Parse(`[{"$match": {"status": "completed"}}]`)
	require.NoError(t, err)
	require.Len(t, p.Stages, 1)

	m, ok := p.Stages[0].(MatchStage)
	require.True(t, ok)
	cmp, ok := m.Predicate.(PredCmp)
	require.True(t, ok)
	assert.Equal(t, "status", cmp.Field)
	assert.Equal(t, "$eq", cmp.Op)
}

func TestParse_MatchIn(t *testing.T) {
	p, err := Parse(`[{"$match": {"status": {"$in": ["completed", "pending"]}}}]`)
	require.NoError(t, err)
	m := p.Stages[0].(MatchStage)
	in, ok := m.Predicate.(PredIn)
	require.True(t, ok)
	assert.Equal(t, "status", in.Field)
	assert.False(t, in.Negate)
	assert.Len(t, in.Values, 2)
}

func TestParse_ProjectWithExclusion(t *testing.T) {
	p, err := Parse(`[{"$project": {"_id": 1, "status": 1, "secret": 0}}]`)
	require.NoError(t, err)
	proj := p.Stages[0].(ProjectStage)
	require.NotNil(t, proj.IncludeID)
	assert.True(t, *proj.IncludeID)

	var names []string
	for _, f := range proj.Fields {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "status")
}

func TestParse_ProjectPropagatesMalformedExpressionError(t *testing.T) {
	_, err := Parse(`[{"$project": {"bad": {"$cond": [1, 2]}}}]`)
	require.Error(t, err)
	var ee *ExpressionError
	assert.ErrorAs(t, err, &ee)
}

func TestParse_Group(t *testing.T) {
	p, err := Parse(`[{"$group": {"_id": "$status", "count": {"$sum": 1}}}]`)
	require.NoError(t, err)
	g := p.Stages[0].(GroupStage)

	id, ok := g.ID.(FieldRef)
	require.True(t, ok)
	assert.Equal(t, "status", id.Path)

	require.Len(t, g.Accumulators, 1)
	assert.Equal(t, "count", g.Accumulators[0].Name)
	acc := g.Accumulators[0].Expr.(OpCall)
	assert.Equal(t, "$sum", acc.Op)
}

func TestParse_UnwindShorthand(t *testing.T) {
	p, err := Parse(`[{"$unwind": "$items"}]`)
	require.NoError(t, err)
	u := p.Stages[0].(UnwindStage)
	assert.Equal(t, "items", u.Path)
	assert.False(t, u.PreserveNullAndEmptyArrays)
}

func TestParse_UnwindObjectForm(t *testing.T) {
	p, err := Parse(`[{"$unwind": {"path": "$items", "preserveNullAndEmptyArrays": true}}]`)
	require.NoError(t, err)
	u := p.Stages[0].(UnwindStage)
	assert.Equal(t, "items", u.Path)
	assert.True(t, u.PreserveNullAndEmptyArrays)
}

func TestParse_CountKeepsSingleCountStage(t *testing.T) {
	p, err := Parse(`[{"$count": "total"}]`)
	require.NoError(t, err)
	require.Len(t, p.Stages, 1)
	c, ok := p.Stages[0].(CountStage)
	require.True(t, ok)
	assert.Equal(t, "total", c.Field)
}

func TestParse_SortByCountDesugars(t *testing.T) {
	p, err := Parse(`[{"$sortByCount": "$status"}]`)
	require.NoError(t, err)
	require.Len(t, p.Stages, 2)
	_, isGroup := p.Stages[0].(GroupStage)
	_, isSort := p.Stages[1].(SortStage)
	assert.True(t, isGroup)
	assert.True(t, isSort)
}

func TestParse_UnknownStage(t *testing.T) {
	_, err := Parse(`[{"$bogusStage": {}}]`)
	require.Error(t, err)
	var pe *PipelineError
	assert.ErrorAs(t, err, &pe)
}

func TestParse_MalformedInput(t *testing.T) {
	_, err := Parse(`{"not": "an array"}`)
	require.Error(t, err)
	var ie *InputError
	assert.ErrorAs(t, err, &ie)
}

func TestParse_Lookup(t *testing.T) {
	p, err := Parse(`[{"$lookup": {"from": "customers", "localField": "customerId", "foreignField": "_id", "as": "customer"}}]`)
	require.NoError(t, err)
	l := p.Stages[0].(LookupStage)
	assert.Equal(t, "customers", l.From)
	assert.Equal(t, "customerId", l.LocalField)
	assert.Equal(t, "_id", l.ForeignField)
	assert.Equal(t, "customer", l.As)
}

func TestParse_BucketAcceptsAscendingBoundaries(t *testing.T) {
	p, err := Parse(`[{"$bucket": {"groupBy": "$price", "boundaries": [0, 100, 200]}}]`)
	require.NoError(t, err)
	b := p.Stages[0].(BucketStage)
	assert.Len(t, b.Boundaries, 3)
}

func TestParse_BucketRejectsNonAscendingBoundaries(t *testing.T) {
	_, err := Parse(`[{"$bucket": {"groupBy": "$price", "boundaries": [0, 200, 100]}}]`)
	require.Error(t, err)
	var pe *PipelineError
	assert.ErrorAs(t, err, &pe)
}

func TestParse_BucketRejectsEqualBoundaries(t *testing.T) {
	_, err := Parse(`[{"$bucket": {"groupBy": "$price", "boundaries": [0, 100, 100]}}]`)
	require.Error(t, err)
}

func TestParse_SetWindowFields(t *testing.T) {
	p, err := Parse(`[{"$setWindowFields": {
		"partitionBy": "$department",
		"sortBy": {"salary": -1},
		"output": {"salaryRank": {"$rank": {}}}
	}}]`)
	require.NoError(t, err)
	w := p.Stages[0].(SetWindowFieldsStage)
	require.Len(t, w.SortBy, 1)
	assert.Equal(t, "salary", w.SortBy[0].Field)
	assert.True(t, w.SortBy[0].Desc)
	require.Len(t, w.Output, 1)
	assert.Equal(t, "salaryRank", w.Output[0].Name)
}
