package mongora

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompactJSON_RoundTripsParsablePipeline(t *testing.T) {
	cases := []string{
		`[{"$match": {"status": "completed"}}]`,
		`[{"$group": {"_id": "$status", "count": {"$sum": 1}}}]`,
		`[{"$sort": {"status": 1}}, {"$limit": 10}]`,
	}

	for _, input := range cases {
		p, err := Parse(input)
		require.NoError(t, err)

		out := CompactJSON(p)
		p2, err := Parse(out)
		require.NoError(t, err, "re-parsing dumped pipeline: %s", out)
		assert.Equal(t, p, p2)
	}
}

func TestDumpJSON_IsIndentedValidJSON(t *testing.T) {
	p, err := Parse(`[{"$match": {"status": "completed"}}]`)
	require.NoError(t, err)

	out := DumpJSON(p)
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Contains(t, out, "\n")
}

func TestCompactJSON_NormalizesUnwindShorthand(t *testing.T) {
	p, err := Parse(`[{"$unwind": "$items"}]`)
	require.NoError(t, err)

	out := CompactJSON(p)
	var arr []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &arr))
	unwindDoc, ok := arr[0]["$unwind"].(map[string]interface{})
	require.True(t, ok, "expected $unwind to serialize back to object form")
	assert.Equal(t, "$items", unwindDoc["path"])
}
