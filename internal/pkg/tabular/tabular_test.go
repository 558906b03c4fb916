package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectCountsRowsAndColumns(t *testing.T) {
	raw := []byte("region,quarter,revenue\nnorth,Q1,10\nsouth,Q1,12\nnorth,Q2,\"1,5\"\nsouth,Q2,9\n")

	stats, err := Inspect(raw)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Rows)
	assert.Equal(t, 3, stats.Columns)
	assert.Equal(t, []string{"region", "quarter", "revenue"}, stats.Header)
	assert.Equal(t, []string{"north", "Q2", "1,5"}, stats.Preview[2])

	desc := stats.Describe()
	assert.Contains(t, desc, "4 rows and 3 columns: region, quarter, revenue")
	assert.Contains(t, desc, "| south | Q2 | 9 |")
}

func TestInspectErrors(t *testing.T) {
	_, err := Inspect(nil)
	assert.ErrorIs(t, err, ErrNoHeader)

	_, err = Inspect([]byte("a,b\n\"unterminated\n"))
	assert.Error(t, err)
}

func TestPreviewIsCapped(t *testing.T) {
	raw := []byte("n\n1\n2\n3\n4\n5\n6\n7\n")
	stats, err := Inspect(raw)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Rows)
	assert.Len(t, stats.Preview, previewRows)
}
