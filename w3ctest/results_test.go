package w3ctest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	store, err := OpenResultStore(path)
	require.NoError(t, err)
	defer store.Close()

	report := &Report{
		Started: time.Now(),
		Outcomes: []Outcome{
			{ID: "144", Passed: true, Duration: 12 * time.Millisecond},
			{ID: "403", Passed: false, Detail: "reached fail state", Duration: 40 * time.Millisecond},
			{ID: "999", Skipped: true, Detail: "manual test"},
		},
	}
	runID, err := store.RecordRun(report)
	require.NoError(t, err)
	assert.Positive(t, runID)

	latest, err := store.LastOutcomes()
	require.NoError(t, err)
	assert.Equal(t, "pass", latest["144"])
	assert.Equal(t, "fail", latest["403"])
	assert.Equal(t, "skip", latest["999"])

	// A newer run supersedes the older outcome per test.
	report.Outcomes[1].Passed = true
	report.Outcomes[1].Detail = ""
	_, err = store.RecordRun(report)
	require.NoError(t, err)
	latest, err = store.LastOutcomes()
	require.NoError(t, err)
	assert.Equal(t, "pass", latest["403"])
}
