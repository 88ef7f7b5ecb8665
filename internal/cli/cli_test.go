package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/facets/internal/journal"
)

const (
	delegationSchema = "../schema/testdata/delegation.yaml"
	delegationSteps  = "../schema/testdata/delegation_steps.yaml"
	shapesSchema     = "../schema/testdata/shapes.yaml"
)

type result struct {
	stdout string
	stderr string
	err    error
}

// run executes facetctl in-process with fresh config and journal
// directories under dir.
func run(t *testing.T, dir string, args ...string) result {
	t.Helper()
	root := NewRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{
		"--config-dir", filepath.Join(dir, "config"),
		"--data-dir", filepath.Join(dir, "journal"),
	}, args...))
	err := root.Execute()
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func TestVersion(t *testing.T) {
	r := run(t, t.TempDir(), "version")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "facetctl v")
	assert.Contains(t, r.stdout, "module: "+modulePath)
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	r := run(t, dir, "init")
	require.NoError(t, r.err)
	assert.FileExists(t, filepath.Join(dir, "config", "config.yaml"))
	assert.FileExists(t, filepath.Join(dir, "journal", journal.FileName))
	assert.Contains(t, r.stdout, "journal: ")

	r = run(t, dir, "init", "--json")
	require.NoError(t, r.err, "init is idempotent")
	assert.Contains(t, r.stdout, `"config_dir"`)
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.yaml"), []byte("log_level: loud\n"), 0o644))

	r := run(t, dir, "init")
	require.Error(t, r.err)
	assert.Equal(t, exitUserError, ExitCode(r.err))
}

func TestCheckSchemaOnly(t *testing.T) {
	r := run(t, t.TempDir(), "check", shapesSchema)
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "Point: ")
	assert.Contains(t, r.stdout, "Labeled(Point): ")
	assert.NotContains(t, r.stdout, "steps")
}

func TestCheckScript(t *testing.T) {
	dir := t.TempDir()

	r := run(t, dir, "check", delegationSchema, delegationSteps)
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "10 steps, 2 failed")
	assert.Contains(t, r.stdout, "get    v = 4")

	r = run(t, dir, "check", delegationSchema, delegationSteps, "--fail-on-error")
	require.Error(t, r.err)
	assert.Equal(t, exitUserError, ExitCode(r.err))

	r = run(t, dir, "--json", "check", delegationSchema, delegationSteps)
	require.NoError(t, r.err)
	var view checkView
	require.NoError(t, jsonAPI.UnmarshalFromString(r.stdout, &view))
	require.Len(t, view.Steps, 10)
	assert.Equal(t, 2, view.Failures)
	assert.Equal(t, float64(4), view.Steps[1].Value)
	assert.NotEmpty(t, view.Steps[6].Error)
}

func TestCheckErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("classes:\n  - name: X\n    facets:\n      v: {kind: nonsense}\n"), 0o644))

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing schema", args: []string{"check", filepath.Join(dir, "nope.yaml")}},
		{name: "unknown format", args: []string{"check", filepath.Join(dir, "schema.ini")}},
		{name: "bad kind", args: []string{"check", bad}},
		{name: "missing script", args: []string{"check", delegationSchema, filepath.Join(dir, "nope.yaml")}},
		{name: "too many args", args: []string{"check", "a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := run(t, dir, tt.args...)
			require.Error(t, r.err)
			assert.Equal(t, exitUserError, ExitCode(r.err))
		})
	}
}

func TestTraceRecordsJournal(t *testing.T) {
	dir := t.TempDir()

	r := run(t, dir, "trace", delegationSchema, delegationSteps, "--metrics")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "a.v [item] 0 -> 4")
	assert.Contains(t, r.stdout, "b.parent [item]")
	assert.Contains(t, r.stdout, "journal run: ")
	assert.Contains(t, r.stdout, "facets_notifications_total{category=item,class=A,name=v}")

	r = run(t, dir, "--json", "journal", "list", "--name", "v")
	require.NoError(t, r.err)
	var entries []journal.Entry
	require.NoError(t, jsonAPI.UnmarshalFromString(r.stdout, &entries))
	require.NotEmpty(t, entries)
	assert.Equal(t, "A", entries[0].Class)
	assert.Equal(t, "4", entries[0].NewValue)

	out := filepath.Join(dir, "journal.jsonl")
	r = run(t, dir, "journal", "export", out)
	require.NoError(t, r.err)
	assert.Contains(t, r.stderr, "exported ")
	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	exported, err := journal.ReadExport(f)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(exported), len(entries))

	r = run(t, dir, "journal", "export", "-", "--limit", "1")
	require.NoError(t, r.err)
	assert.Equal(t, 1, bytes.Count([]byte(r.stdout), []byte("\n")))
}

func TestTraceJSON(t *testing.T) {
	r := run(t, t.TempDir(), "--json", "trace", delegationSchema, delegationSteps)
	require.NoError(t, r.err)
	var view traceView
	require.NoError(t, jsonAPI.UnmarshalFromString(r.stdout, &view))
	assert.NotEmpty(t, view.RunID)
	assert.Equal(t, 2, view.Failures)
	require.NotEmpty(t, view.Notifications)
	first := view.Notifications[0]
	assert.Equal(t, "a", first.Host)
	assert.Equal(t, "v", first.Name)
	assert.Empty(t, view.Metrics, "metrics are off by default")

	var parent *noteView
	for i := range view.Notifications {
		if view.Notifications[i].Name == "parent" {
			parent = &view.Notifications[i]
		}
	}
	require.NotNil(t, parent)
	assert.Equal(t, "@a", parent.New)
	assert.Nil(t, parent.Old)
}

func TestJournalListEmpty(t *testing.T) {
	r := run(t, t.TempDir(), "--json", "journal", "list")
	require.NoError(t, r.err)
	assert.Equal(t, "[]\n", r.stdout)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitSuccess, ExitCode(nil))
	assert.Equal(t, exitUserError, ExitCode(errors.New("usage")))
	assert.Equal(t, exitSysError, ExitCode(sysError(errors.New("disk"))))
	assert.Equal(t, exitUserError, ExitCode(userError(errors.New("input"))))
}
