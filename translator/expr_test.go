package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squall-chua/mongora"
)

func testCtx() ctx {
	return rootCtx(NewSettings(), "base")
}

func TestCompileFieldRef_Scalar(t *testing.T) {
	sql, numeric, err := compileFieldRef(testCtx(), "status")
	require.NoError(t, err)
	assert.False(t, numeric)
	assert.Equal(t, "JSON_VALUE(base.data, '$.status')", sql)
}

func TestCompileFieldRef_NumericSchemaHint(t *testing.T) {
	c := rootCtx(NewSettings(WithSchema(mongora.Schema{"quantity": mongora.KindNumber})), "base")
	sql, numeric, err := compileFieldRef(c, "quantity")
	require.NoError(t, err)
	assert.True(t, numeric)
	assert.Contains(t, sql, "RETURNING NUMBER")
}

func TestCompileFieldRef_UnderscoreIdUsesIdColumn(t *testing.T) {
	sql, _, err := compileFieldRef(testCtx(), "_id")
	require.NoError(t, err)
	assert.Equal(t, "base.id", sql)
}

func TestCompileFieldRef_ObjectSchemaUsesJsonQuery(t *testing.T) {
	c := rootCtx(NewSettings(WithSchema(mongora.Schema{"address": mongora.KindObject})), "base")
	sql, _, err := compileFieldRef(c, "address")
	require.NoError(t, err)
	assert.Contains(t, sql, "JSON_QUERY")
}

func TestCompileFieldRef_ResolvesUnwindBinding(t *testing.T) {
	c := testCtx().withBinding(".items", "it.val").withNumericHint(true)
	sql, _, err := compileFieldRef(c, "items.qty")
	require.NoError(t, err)
	assert.Equal(t, "JSON_VALUE(it.val, '$.qty' RETURNING NUMBER)", sql)
}

func TestCompileOpCall_Add(t *testing.T) {
	o := mongora.OpCall{Op: "$add", Args: []mongora.Expression{
		mongora.FieldRef{Path: "a"}, mongora.FieldRef{Path: "b"},
	}}
	sql, numeric, err := compileOpCall(testCtx(), o)
	require.NoError(t, err)
	assert.True(t, numeric)
	assert.Contains(t, sql, "+")
}

func TestCompileOpCall_CondProducesCase(t *testing.T) {
	o := mongora.OpCall{Op: "$cond", Named: map[string]mongora.Expression{
		"if":   mongora.OpCall{Op: "$gt", Args: []mongora.Expression{mongora.FieldRef{Path: "age"}, mongora.Literal{Value: int32(18)}}},
		"then": mongora.Literal{Value: "adult"},
		"else": mongora.Literal{Value: "minor"},
	}}
	sql, _, err := compileOpCall(testCtx(), o)
	require.NoError(t, err)
	assert.Contains(t, sql, "CASE WHEN")
	assert.Contains(t, sql, "THEN 'adult' ELSE 'minor' END")
}

func TestCompileOpCall_AccumulatorRejected(t *testing.T) {
	o := mongora.OpCall{Op: "$sum", Args: []mongora.Expression{mongora.Literal{Value: int32(1)}}}
	_, _, err := compileOpCall(testCtx(), o)
	require.Error(t, err)
}

func TestCompileOpCall_UnsupportedStrictErrors(t *testing.T) {
	o := mongora.OpCall{Op: "$concatArrays", Args: []mongora.Expression{mongora.FieldRef{Path: "a"}}}
	_, _, err := compileOpCall(testCtx(), o)
	require.Error(t, err)
	var ue *mongora.UnsupportedError
	assert.ErrorAs(t, err, &ue)
}

func TestCompileOpCall_UnsupportedLenientSentinel(t *testing.T) {
	c := rootCtx(NewSettings(WithUnsupportedMode(UnsupportedLenient)), "base")
	o := mongora.OpCall{Op: "$concatArrays", Args: []mongora.Expression{mongora.FieldRef{Path: "a"}}}
	sql, _, err := compileOpCall(c, o)
	require.NoError(t, err)
	assert.Contains(t, sql, "not fully supported")
}

func TestCompileOpCall_FilterUsesLateralJsonTable(t *testing.T) {
	o := mongora.OpCall{Op: "$filter", Named: map[string]mongora.Expression{
		"input": mongora.FieldRef{Path: "items"},
		"as":    mongora.Literal{Value: "it"},
		"cond": mongora.OpCall{Op: "$gt", Args: []mongora.Expression{
			mongora.VarRef{Var: "it", Path: "qty"}, mongora.Literal{Value: int32(5)},
		}},
	}}
	sql, _, err := compileOpCall(testCtx(), o)
	require.NoError(t, err)
	assert.Contains(t, sql, "JSON_TABLE(base.data, '$.items[*]'")
	assert.Contains(t, sql, "JSON_ARRAYAGG(")
	assert.Contains(t, sql, "WHERE")
	assert.Contains(t, sql, ".qty")
}

func TestCompileOpCall_MapProjectsIn(t *testing.T) {
	o := mongora.OpCall{Op: "$map", Named: map[string]mongora.Expression{
		"input": mongora.FieldRef{Path: "items"},
		"in":    mongora.VarRef{Var: "this", Path: "qty"},
	}}
	sql, _, err := compileOpCall(testCtx(), o)
	require.NoError(t, err)
	assert.Contains(t, sql, "JSON_TABLE(base.data, '$.items[*]'")
	assert.Contains(t, sql, "JSON_ARRAYAGG(")
	assert.NotContains(t, sql, "WHERE")
}

func TestCompileOpCall_FilterRequiresFieldPathInput(t *testing.T) {
	o := mongora.OpCall{Op: "$filter", Named: map[string]mongora.Expression{
		"input": mongora.Literal{Value: 1},
		"cond":  mongora.Literal{Value: true},
	}}
	_, _, err := compileOpCall(testCtx(), o)
	require.Error(t, err)
}

func TestRenderLiteral_BindPlaceholders(t *testing.T) {
	c := rootCtx(NewSettings(WithBindMode(BindPlaceholders)), "base")
	sql1 := renderLiteral(c, "a")
	sql2 := renderLiteral(c, "b")
	assert.Equal(t, ":1", sql1)
	assert.Equal(t, ":2", sql2)
	assert.Equal(t, []interface{}{"a", "b"}, c.state.params)
}

func TestCompileVarRef_UnboundErrors(t *testing.T) {
	_, _, err := compileVarRef(testCtx(), mongora.VarRef{Var: "nope"})
	require.Error(t, err)
}

func TestCompileVarRef_RootIsActiveDocument(t *testing.T) {
	sql, _, err := compileVarRef(testCtx(), mongora.VarRef{Var: "ROOT"})
	require.NoError(t, err)
	assert.Equal(t, "base.data", sql)
}

func TestCompileVarRef_RedactSentinels(t *testing.T) {
	sql, _, err := compileVarRef(testCtx(), mongora.VarRef{Var: "KEEP"})
	require.NoError(t, err)
	assert.Equal(t, redactKeepSQL, sql)

	sql, _, err = compileVarRef(testCtx(), mongora.VarRef{Var: "PRUNE"})
	require.NoError(t, err)
	assert.Equal(t, redactPruneSQL, sql)

	sql, _, err = compileVarRef(testCtx(), mongora.VarRef{Var: "DESCEND"})
	require.NoError(t, err)
	assert.Equal(t, redactDescendSQL, sql)
}
