package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squall-chua/mongora"
)

func TestCompilePredicate_NilIsTautology(t *testing.T) {
	sql, err := compilePredicate(testCtx(), nil)
	require.NoError(t, err)
	assert.Equal(t, "1=1", sql)
}

func TestCompilePredicate_Cmp(t *testing.T) {
	p := mongora.PredCmp{Field: "status", Op: "$eq", Value: mongora.Literal{Value: "completed"}}
	sql, err := compilePredicate(testCtx(), p)
	require.NoError(t, err)
	assert.Equal(t, "JSON_VALUE(base.data, '$.status') = 'completed'", sql)
}

func TestCompilePredicate_CmpNullUsesIsNull(t *testing.T) {
	p := mongora.PredCmp{Field: "deletedAt", Op: "$eq", Value: mongora.Literal{Value: nil}}
	sql, err := compilePredicate(testCtx(), p)
	require.NoError(t, err)
	assert.Contains(t, sql, "IS NULL")
}

func TestCompilePredicate_In(t *testing.T) {
	p := mongora.PredIn{Field: "status", Values: []mongora.Expression{
		mongora.Literal{Value: "completed"}, mongora.Literal{Value: "pending"},
	}}
	sql, err := compilePredicate(testCtx(), p)
	require.NoError(t, err)
	assert.Equal(t, "JSON_VALUE(base.data, '$.status') IN ('completed', 'pending')", sql)
}

func TestCompilePredicate_And(t *testing.T) {
	p := mongora.PredAnd{Clauses: []mongora.Predicate{
		mongora.PredCmp{Field: "a", Op: "$eq", Value: mongora.Literal{Value: "x"}},
		mongora.PredCmp{Field: "b", Op: "$eq", Value: mongora.Literal{Value: "y"}},
	}}
	sql, err := compilePredicate(testCtx(), p)
	require.NoError(t, err)
	assert.Contains(t, sql, "AND")
}

func TestCompilePredicate_Exists(t *testing.T) {
	p := mongora.PredExists{Field: "email", Exists: true}
	sql, err := compilePredicate(testCtx(), p)
	require.NoError(t, err)
	assert.Equal(t, "JSON_EXISTS(base.data, '$.email')", sql)
}

func TestCompilePredicate_ElemMatchScopesSubPredicateToElement(t *testing.T) {
	p := mongora.PredElemMatch{
		Field: "items",
		Sub: mongora.PredCmp{
			Field: "qty", Op: "$gte", Value: mongora.Literal{Value: int32(5)},
		},
	}
	sql, err := compilePredicate(testCtx(), p)
	require.NoError(t, err)
	assert.Contains(t, sql, "JSON_TABLE(base.data, '$.items[*]'")
	assert.Contains(t, sql, "EXISTS (SELECT 1 FROM")
	// The sub-predicate must read from the unnested element's own
	// column, not the outer document.
	assert.NotContains(t, sql, "base.data, '$.qty'")
}

func TestCompilePredicate_RegexWithOptions(t *testing.T) {
	p := mongora.PredRegex{Field: "name", Pattern: "^A", Options: "i"}
	sql, err := compilePredicate(testCtx(), p)
	require.NoError(t, err)
	assert.Contains(t, sql, "REGEXP_LIKE(")
	assert.Contains(t, sql, "'i'")
}
