package w3ctest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/newmassrael/reactive-state-machine-sub002/datamodel/ecmascript"
	_ "github.com/newmassrael/reactive-state-machine-sub002/datamodel/null"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRunnerBundledSuite(t *testing.T) {
	tests, err := Discover("testdata/w3c")
	require.NoError(t, err)
	require.NotEmpty(t, tests)

	runner := &Runner{Logger: discardLogger(), Workers: 2}
	report, err := runner.Run(context.Background(), tests)
	require.NoError(t, err)

	for _, o := range report.Outcomes {
		if o.ID == "999" {
			assert.True(t, o.Skipped, "manual test must be skipped")
			continue
		}
		assert.True(t, o.Passed, "test %s: %s", o.ID, o.Detail)
	}
	assert.True(t, report.AllPassed())

	passed, failed, skipped := report.Counts()
	assert.Equal(t, len(tests)-1, passed)
	assert.Zero(t, failed)
	assert.Equal(t, 1, skipped)
}

func TestRunnerCompareMode(t *testing.T) {
	tests, err := Discover("testdata/w3c")
	require.NoError(t, err)
	sel, err := ParseSelection([]string{"144", "403"})
	require.NoError(t, err)
	tests = sel.Filter(tests)
	require.Len(t, tests, 2)

	runner := &Runner{Logger: discardLogger(), Compare: true}
	report, err := runner.Run(context.Background(), tests)
	require.NoError(t, err)
	assert.True(t, report.AllPassed(), "outcomes: %+v", report.Outcomes)
}

func TestRunnerReportsFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1.scxml")
	writeFile(t, path, `<scxml version="1.0" datamodel="null" initial="s0">
  <state id="s0"><transition target="fail"/></state>
  <final id="pass"/>
  <final id="fail"/>
</scxml>`)

	tests, err := Discover(dir)
	require.NoError(t, err)
	runner := &Runner{Logger: discardLogger()}
	report, err := runner.Run(context.Background(), tests)
	require.NoError(t, err)
	assert.False(t, report.AllPassed())
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "reached fail state", report.Outcomes[0].Detail)
}

func TestRunnerReportsTimeout(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "2.scxml"), `<scxml version="1.0" datamodel="null" initial="s0">
  <state id="s0"><transition event="never" target="pass"/></state>
  <final id="pass"/>
</scxml>`)
	writeFile(t, filepath.Join(dir, "2.yaml"), "id: \"2\"\ntimeout: 200ms\n")

	tests, err := Discover(dir)
	require.NoError(t, err)
	runner := &Runner{Logger: discardLogger()}

	start := time.Now()
	report, err := runner.Run(context.Background(), tests)
	require.NoError(t, err)
	assert.False(t, report.AllPassed())
	assert.Equal(t, "timeout", report.Outcomes[0].Detail)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunnerReportsParseDiagnostics(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "3.scxml"), `<scxml version="1.0" datamodel="null">
  <state id="dup"/><state id="dup"/>
</scxml>`)

	tests, err := Discover(dir)
	require.NoError(t, err)
	runner := &Runner{Logger: discardLogger()}
	report, err := runner.Run(context.Background(), tests)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.False(t, report.Outcomes[0].Passed)
	assert.Contains(t, report.Outcomes[0].Detail, "E101")
}
