package journal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/facets/pkg/facets"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time { return t0 }
}

func openJournal(t *testing.T, dir string) *Journal {
	t.Helper()
	j, err := Open(dir, WithClock(fixedClock()))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func pointClass() *facets.Class {
	c := facets.NewClass("Point")
	c.MustDefine("x", facets.Plain(facets.WithValue(0)))
	c.MustDefine("peer", facets.Plain())
	c.MustDefine("tags", facets.Plain(facets.WithDefault(facets.List())))
	return c
}

func TestOpenErrors(t *testing.T) {
	_, err := Open("")
	assert.ErrorIs(t, err, ErrDirEmpty)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = Open(filepath.Join(file, "sub"))
	assert.Error(t, err)
}

func TestNotifyRecordsChanges(t *testing.T) {
	j := openJournal(t, t.TempDir())
	assert.FileExists(t, j.Path())

	h := pointClass().MustNew()
	h.OnAnyChange(j)
	require.NoError(t, h.Set("x", 3))
	require.NoError(t, h.Set("x", 4))

	entries, err := j.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, j.RunID(), first.RunID)
	assert.Equal(t, h.ID().String(), first.HostID)
	assert.Equal(t, "Point", first.Class)
	assert.Equal(t, "x", first.Name)
	assert.Equal(t, facets.CategoryItem.String(), first.Category)
	assert.Equal(t, "0", first.OldValue)
	assert.Equal(t, "3", first.NewValue)
	assert.Equal(t, "null", first.Record)
	assert.Equal(t, "2026-01-02T03:04:05Z", first.RecordedAt)

	assert.Equal(t, int64(2), entries[1].Seq)
	assert.Equal(t, "4", entries[1].NewValue)
}

func TestNotifyStoresMarkersByName(t *testing.T) {
	j := openJournal(t, t.TempDir())
	h := pointClass().MustNew()
	h.OnAnyChange(j)

	_, err := h.Get("x")
	require.NoError(t, err)

	entries, err := j.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, `"<uninitialized>"`, entries[0].OldValue)
	assert.Equal(t, "0", entries[0].NewValue)
}

func TestEncodeValues(t *testing.T) {
	c := pointClass()
	peer := c.MustNew()

	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "nil", in: nil, want: "null"},
		{name: "string", in: "a", want: `"a"`},
		{name: "undefined", in: facets.Undefined, want: `"<undefined>"`},
		{name: "uninitialized", in: facets.Uninitialized, want: `"<uninitialized>"`},
		{name: "host", in: peer, want: `{"$host":"` + peer.ID().String() + `","$class":"Point"}`},
		{name: "nested", in: []any{1, map[string]any{"b": 2, "a": facets.Undefined}}, want: `[1,{"a":"<undefined>","b":2}]`},
		{name: "markup kept verbatim", in: "<b>&</b>", want: `"<b>&</b>"`},
		{name: "nil list", in: []any(nil), want: "null"},
		{name: "empty list", in: []any{}, want: "[]"},
		{name: "nil map", in: map[string]any(nil), want: "null"},
		{name: "empty map", in: map[string]any{}, want: "{}"},
		{name: "unencodable", in: func() {}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := encodeValue(tt.in)
			if tt.want == "" {
				assert.NotEmpty(t, got)
				assert.Equal(t, byte('"'), got[0], "falls back to a printed string")
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeRecords(t *testing.T) {
	tests := []struct {
		name string
		in   facets.Record
		want string
	}{
		{name: "item", in: facets.Item{New: 1}, want: "null"},
		{name: "event", in: facets.EventRecord{New: "fired"}, want: `{"new":"fired"}`},
		{name: "list", in: facets.ListChange{Added: []any{1}, Index: 2}, want: `{"added":[1],"index":2,"removed":null}`},
		{name: "set", in: facets.SetChange{Removed: []any{"x"}}, want: `{"added":null,"removed":["x"]}`},
		{name: "dict assign", in: facets.DictAssign{New: map[string]any{"k": 1}}, want: `{"new":{"k":1},"old":null}`},
		{name: "empty removal differs from none", in: facets.SetChange{Added: []any{}, Removed: nil}, want: `{"added":[],"removed":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, encodeRecord(tt.in))
		})
	}
}

func TestListFilters(t *testing.T) {
	j := openJournal(t, t.TempDir())
	c := pointClass()
	a, b := c.MustNew(), c.MustNew()
	a.OnAnyChange(j)
	b.OnAnyChange(j)

	require.NoError(t, a.Set("x", 1))
	require.NoError(t, b.Set("x", 2))
	require.NoError(t, a.Set("peer", b))
	require.NoError(t, a.Broadcast("tags", nil, []any{"t"}, facets.ListChange{Added: []any{"t"}}))

	ctx := context.Background()
	tests := []struct {
		name   string
		filter Filter
		seqs   []int64
	}{
		{name: "all", filter: Filter{}, seqs: []int64{1, 2, 3, 4}},
		{name: "host", filter: Filter{HostID: a.ID().String()}, seqs: []int64{1, 3, 4}},
		{name: "name", filter: Filter{Name: "x"}, seqs: []int64{1, 2}},
		{name: "host and name", filter: Filter{HostID: b.ID().String(), Name: "x"}, seqs: []int64{2}},
		{name: "limit", filter: Filter{Limit: 2}, seqs: []int64{1, 2}},
		{name: "run", filter: Filter{RunID: j.RunID()}, seqs: []int64{1, 2, 3, 4}},
		{name: "other run", filter: Filter{RunID: "nope"}, seqs: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := j.List(ctx, tt.filter)
			require.NoError(t, err)
			var seqs []int64
			for _, e := range entries {
				seqs = append(seqs, e.Seq)
			}
			assert.Equal(t, tt.seqs, seqs)
		})
	}

	list, err := j.List(ctx, Filter{Name: "tags"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, facets.CategoryList.String(), list[0].Category)
}

func TestReopenContinuesSequence(t *testing.T) {
	dir := t.TempDir()
	h := pointClass().MustNew()

	j1, err := Open(dir)
	require.NoError(t, err)
	reg := h.OnAnyChange(j1)
	require.NoError(t, h.Set("x", 1))
	require.NoError(t, h.Set("x", 2))
	h.RemoveAnyChange(reg)
	require.NoError(t, j1.Close())

	j2 := openJournal(t, dir)
	assert.NotEqual(t, j1.RunID(), j2.RunID())
	h.OnAnyChange(j2)
	require.NoError(t, h.Set("x", 3))

	entries, err := j2.List(context.Background(), Filter{RunID: j2.RunID()})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].Seq)

	all, err := j2.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestClosedJournal(t *testing.T) {
	j, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close(), "close is idempotent")

	_, err = j.List(context.Background(), Filter{})
	assert.ErrorIs(t, err, ErrClosed)

	h := pointClass().MustNew()
	h.OnAnyChange(j)
	assert.ErrorIs(t, h.Set("x", 1), ErrClosed, "append failures abort the broadcast")
}

func TestExport(t *testing.T) {
	j := openJournal(t, t.TempDir())
	h := pointClass().MustNew()
	h.OnAnyChange(j)
	require.NoError(t, h.Set("x", 1))
	require.NoError(t, h.Set("x", 2))

	var buf bytes.Buffer
	n, err := j.Export(context.Background(), &buf, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))

	got, err := ReadExport(&buf)
	require.NoError(t, err)
	want, err := j.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestExportFile(t *testing.T) {
	dir := t.TempDir()
	j := openJournal(t, dir)
	h := pointClass().MustNew()
	h.OnAnyChange(j)
	require.NoError(t, h.Set("x", 7))

	path := filepath.Join(dir, "out.jsonl")
	n, err := j.ExportFile(context.Background(), path, Filter{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := ReadExport(f)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "7", got[0].NewValue)

	leftovers, err := filepath.Glob(filepath.Join(dir, ".jsonl-*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	_, err = j.ExportFile(context.Background(), filepath.Join(dir, "missing", "out.jsonl"), Filter{})
	assert.Error(t, err)
}

func TestReadExportRejectsMalformedLines(t *testing.T) {
	_, err := ReadExport(bytes.NewBufferString("{\"seq\":1}\n\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}
