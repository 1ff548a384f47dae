package w3ctest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover(t *testing.T) {
	tests, err := Discover("testdata/w3c")
	require.NoError(t, err)
	require.NotEmpty(t, tests)

	byID := make(map[string]Test)
	for _, test := range tests {
		byID[test.ID] = test
	}

	require.Contains(t, byID, "144")
	assert.False(t, byID["144"].TXML)
	assert.Equal(t, "ecmascript", byID["144"].Manifest.Datamodel)
	assert.Equal(t, 3*time.Second, byID["144"].Manifest.Timeout)

	require.Contains(t, byID, "355")
	assert.True(t, byID["355"].TXML)
	// No manifest: defaults apply.
	assert.Equal(t, 5*time.Second, byID["355"].Manifest.Timeout)
	assert.Equal(t, "mandatory", byID["355"].Manifest.Conformance)

	require.Contains(t, byID, "999")
	assert.True(t, byID["999"].Manifest.Manual)

	// Numeric ordering.
	assert.Equal(t, "144", tests[0].ID)
}

func TestParseSelection(t *testing.T) {
	sel, err := ParseSelection(nil)
	require.NoError(t, err)
	assert.True(t, sel.Matches("144"))
	assert.True(t, sel.Matches("anything"))

	sel, err = ParseSelection([]string{"144", "403"})
	require.NoError(t, err)
	assert.True(t, sel.Matches("144"))
	assert.True(t, sel.Matches("403"))
	assert.False(t, sel.Matches("355"))

	sel, err = ParseSelection([]string{"100~200"})
	require.NoError(t, err)
	assert.True(t, sel.Matches("144"))
	assert.True(t, sel.Matches("200"))
	assert.False(t, sel.Matches("355"))

	sel, err = ParseSelection([]string{"~200"})
	require.NoError(t, err)
	assert.True(t, sel.Matches("144"))
	assert.False(t, sel.Matches("403"))

	sel, err = ParseSelection([]string{"400~"})
	require.NoError(t, err)
	assert.True(t, sel.Matches("403"))
	assert.False(t, sel.Matches("144"))

	_, err = ParseSelection([]string{"abc~def"})
	assert.Error(t, err)
}

func TestSelectionFilter(t *testing.T) {
	tests := []Test{{ID: "144"}, {ID: "355"}, {ID: "403"}}
	sel, err := ParseSelection([]string{"300~500"})
	require.NoError(t, err)
	filtered := sel.Filter(tests)
	require.Len(t, filtered, 2)
	assert.Equal(t, "355", filtered[0].ID)
	assert.Equal(t, "403", filtered[1].ID)
}
