package translator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate_EmptyPipelineIsSelectStar(t *testing.T) {
	sql, err := Translate("sales", `[]`)
	require.NoError(t, err)
	assert.Contains(t, sql, "FROM sales")
	assert.Contains(t, sql, "base.id")
	assert.Contains(t, sql, "base.data")
}

func TestTranslate_GroupByStatusWithCount(t *testing.T) {
	sql, err := Translate("sales", `[
		{"$group": {"_id": "$status", "count": {"$sum": 1}}},
		{"$sort": {"_id": 1}}
	]`)
	require.NoError(t, err)
	assert.Contains(t, sql, "COUNT(*)")
	assert.Contains(t, sql, "GROUP BY")
	// The trailing $sort on _id must resolve against the grouped output
	// column, not re-extract "_id" from the original document.
	assert.Contains(t, sql, "ORDER BY g.grp_id")
	assert.NotContains(t, sql, "JSON_VALUE(g.data")
}

func TestTranslate_BucketThenSortOnOutputAlias(t *testing.T) {
	sql, err := Translate("orders", `[
		{"$bucket": {"groupBy": "$price", "boundaries": [0, 100, 200], "output": {"total": {"$sum": "$price"}}}},
		{"$sort": {"_id": 1}}
	]`)
	require.NoError(t, err)
	assert.Contains(t, sql, "GROUP BY")
	// The trailing $sort on _id must resolve against the bucketed output
	// column, not re-extract "_id" from the original document.
	assert.Contains(t, sql, "ORDER BY b.")
	assert.NotContains(t, sql, "JSON_VALUE(b.data")
}

func TestTranslate_BucketAutoThenMatchOnOutputAlias(t *testing.T) {
	sql, err := Translate("orders", `[
		{"$bucketAuto": {"groupBy": "$price", "buckets": 4, "output": {"total": {"$sum": "$price"}}}},
		{"$match": {"total": {"$gt": 100}}}
	]`)
	require.NoError(t, err)
	assert.Contains(t, sql, "GROUP BY")
	assert.Contains(t, sql, "WHERE")
	assert.Contains(t, sql, "b.total > 100")
	assert.NotContains(t, sql, "JSON_VALUE(b.data")
}

func TestTranslate_RedactFiltersOnPruneSentinel(t *testing.T) {
	sql, err := Translate("accounts", `[
		{"$redact": {"$cond": {"if": {"$eq": ["$level", "secret"]}, "then": "$$PRUNE", "else": "$$KEEP"}}}
	]`)
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE")
	assert.Contains(t, sql, "<> '$$PRUNE'")
	assert.Contains(t, sql, "'$$PRUNE'")
	assert.Contains(t, sql, "'$$KEEP'")
}

func TestTranslate_MatchInThenProject(t *testing.T) {
	sql, err := Translate("sales", `[
		{"$match": {"status": {"$in": ["completed", "pending"]}}},
		{"$project": {"_id": 1, "status": 1}}
	]`)
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE")
	assert.Contains(t, sql, "IN ('completed', 'pending')")
	assert.Contains(t, sql, "AS status")
}

func TestTranslate_SuccessiveMatchAndCombines(t *testing.T) {
	sql, err := Translate("sales", `[
		{"$match": {"status": "completed"}},
		{"$match": {"region": "west"}}
	]`)
	require.NoError(t, err)
	// Two successive $match stages AND-combine into one WHERE clause
	// rather than nesting a nearly-identity subquery.
	assert.Equal(t, 1, strings.Count(sql, "WHERE"))
	assert.Contains(t, sql, "AND")
}

func TestTranslate_UnwindThenGroupUsesJsonTable(t *testing.T) {
	sql, err := Translate("orders", `[
		{"$unwind": "$items"},
		{"$group": {
			"_id": "$items.product",
			"totalQuantity": {"$sum": "$items.qty"},
			"totalRevenue": {"$sum": {"$multiply": ["$items.qty", "$items.price"]}}
		}},
		{"$sort": {"_id": 1}}
	]`)
	require.NoError(t, err)
	assert.Contains(t, sql, "JSON_TABLE")
	assert.Contains(t, sql, "$.items[*]")
	assert.Contains(t, sql, "SUM(")
}

func TestTranslate_SortThenGroupFirstUsesKeepDenseRank(t *testing.T) {
	sql, err := Translate("employees", `[
		{"$sort": {"salary": -1}},
		{"$group": {"_id": "$department", "highestPaidEmployee": {"$first": "$name"}}},
		{"$sort": {"_id": 1}}
	]`)
	require.NoError(t, err)
	assert.Contains(t, sql, "KEEP (DENSE_RANK FIRST ORDER BY")
	assert.Contains(t, sql, "salary DESC")
}

func TestTranslate_SetWindowFieldsThenMatchFiltersOnOuterQuery(t *testing.T) {
	sql, err := Translate("employees", `[
		{"$setWindowFields": {
			"partitionBy": "$department",
			"sortBy": {"salary": -1},
			"output": {"salaryRank": {"$rank": {}}}
		}},
		{"$match": {"salaryRank": 1}}
	]`)
	require.NoError(t, err)
	assert.Contains(t, sql, "RANK() OVER")
	assert.Contains(t, sql, "PARTITION BY")
	// The $match after $setWindowFields must filter on the window
	// output's own column, not re-extract "salaryRank" as JSON (it was
	// never part of the original document).
	assert.Contains(t, sql, "WHERE w.salaryRank = 1")
}

func TestTranslate_Facet(t *testing.T) {
	sql, err := Translate("sales", `[
		{"$facet": {
			"byStatus": [{"$group": {"_id": "$status", "count": {"$sum": 1}}}],
			"byRegion": [{"$group": {"_id": "$region", "count": {"$sum": 1}}}]
		}}
	]`)
	require.NoError(t, err)
	// Facets compose into a single JSON_OBJECT('name' VALUE (subquery), …)
	// row, not one column per facet.
	assert.Contains(t, sql, "SELECT JSON_OBJECT(")
	assert.Contains(t, sql, "'byStatus' VALUE (")
	assert.Contains(t, sql, "'byRegion' VALUE (")
	assert.Contains(t, sql, "FROM DUAL")
}

func TestTranslate_LimitZero(t *testing.T) {
	sql, err := Translate("sales", `[{"$limit": 0}]`)
	require.NoError(t, err)
	assert.Contains(t, sql, "FETCH NEXT 0 ROWS ONLY")
}

func TestTranslate_UnsupportedOperatorStrictFails(t *testing.T) {
	_, err := Translate("sales", `[
		{"$project": {"joined": {"$concatArrays": ["$a", "$b"]}}}
	]`)
	require.Error(t, err)
}

func TestTranslate_UnsupportedOperatorLenientEmitsSentinel(t *testing.T) {
	sql, err := Translate("sales", `[
		{"$project": {"joined": {"$concatArrays": ["$a", "$b"]}}}
	]`, WithUnsupportedMode(UnsupportedLenient))
	require.NoError(t, err)
	assert.Contains(t, sql, "not fully supported")
}

func TestTranslateWithParams_BindPlaceholdersNumberSequentially(t *testing.T) {
	result, err := TranslateWithParams("sales", `[
		{"$match": {"status": "completed"}}
	]`, WithBindMode(BindPlaceholders))
	require.NoError(t, err)
	assert.Contains(t, result.SQL, ":1")
	assert.Equal(t, []interface{}{"completed"}, result.Params)
}

