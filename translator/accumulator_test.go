package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squall-chua/mongora"
)

func TestCompileAccumulator_Sum(t *testing.T) {
	o := mongora.OpCall{Op: "$sum", Args: []mongora.Expression{mongora.FieldRef{Path: "qty"}}}
	sql, err := compileAccumulator(testCtx(), o)
	require.NoError(t, err)
	assert.Contains(t, sql, "SUM(")
	assert.Contains(t, sql, "RETURNING NUMBER")
}

func TestCompileAccumulator_Avg(t *testing.T) {
	o := mongora.OpCall{Op: "$avg", Args: []mongora.Expression{mongora.FieldRef{Path: "price"}}}
	sql, err := compileAccumulator(testCtx(), o)
	require.NoError(t, err)
	assert.Contains(t, sql, "AVG(")
}

func TestCompileAccumulator_PushUsesJsonArrayAgg(t *testing.T) {
	o := mongora.OpCall{Op: "$push", Args: []mongora.Expression{mongora.FieldRef{Path: "name"}}}
	sql, err := compileAccumulator(testCtx(), o)
	require.NoError(t, err)
	assert.Contains(t, sql, "JSON_ARRAYAGG(")
	assert.NotContains(t, sql, "DISTINCT")
}

func TestCompileAccumulator_AddToSetIsDistinct(t *testing.T) {
	o := mongora.OpCall{Op: "$addToSet", Args: []mongora.Expression{mongora.FieldRef{Path: "name"}}}
	sql, err := compileAccumulator(testCtx(), o)
	require.NoError(t, err)
	assert.Contains(t, sql, "JSON_ARRAYAGG(DISTINCT ")
}

func TestCompileAccumulator_UnknownOperatorErrors(t *testing.T) {
	o := mongora.OpCall{Op: "$stdDevPop", Args: []mongora.Expression{mongora.FieldRef{Path: "x"}}}
	_, err := compileAccumulator(testCtx(), o)
	require.Error(t, err)
}

func TestCompileAccumulator_NonOperatorRejected(t *testing.T) {
	_, err := compileAccumulator(testCtx(), mongora.Literal{Value: 1})
	require.Error(t, err)
}

func TestIsCountSum1(t *testing.T) {
	assert.True(t, isCountSum1(mongora.OpCall{Op: "$sum", Args: []mongora.Expression{mongora.Literal{Value: int32(1)}}}))
	assert.False(t, isCountSum1(mongora.OpCall{Op: "$sum", Args: []mongora.Expression{mongora.Literal{Value: int32(2)}}}))
	assert.False(t, isCountSum1(mongora.OpCall{Op: "$sum", Args: []mongora.Expression{mongora.FieldRef{Path: "qty"}}}))
}

func TestCompileKeepFirstLast_OrdersByGivenSortKeys(t *testing.T) {
	o := mongora.OpCall{Op: "$first", Args: []mongora.Expression{mongora.FieldRef{Path: "name"}}}
	sql, err := compileKeepFirstLast(testCtx(), o, []mongora.SortKey{{Field: "salary", Desc: true}})
	require.NoError(t, err)
	assert.Contains(t, sql, "KEEP (DENSE_RANK FIRST ORDER BY")
	assert.Contains(t, sql, "salary")
	assert.Contains(t, sql, "DESC")
}

func TestCompileKeepFirstLast_Last(t *testing.T) {
	o := mongora.OpCall{Op: "$last", Args: []mongora.Expression{mongora.FieldRef{Path: "name"}}}
	sql, err := compileKeepFirstLast(testCtx(), o, []mongora.SortKey{{Field: "salary"}})
	require.NoError(t, err)
	assert.Contains(t, sql, "KEEP (DENSE_RANK LAST ORDER BY")
}
