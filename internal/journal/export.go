package journal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Export writes entries matching f to w, one JSON object per line.
// It returns the number of entries written.
func (j *Journal) Export(ctx context.Context, w io.Writer, f Filter) (int, error) {
	entries, err := j.List(ctx, f)
	if err != nil {
		return 0, err
	}
	bw := bufio.NewWriter(w)
	stream := jsonAPI.BorrowStream(bw)
	defer jsonAPI.ReturnStream(stream)

	for i := range entries {
		stream.WriteVal(entries[i])
		stream.WriteRaw("\n")
		if stream.Error != nil {
			return i, fmt.Errorf("encoding entry %d: %w", entries[i].Seq, stream.Error)
		}
		if err := stream.Flush(); err != nil {
			return i, fmt.Errorf("writing entry: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return len(entries), fmt.Errorf("flushing output: %w", err)
	}
	return len(entries), nil
}

// ExportFile writes entries matching f to path atomically using the
// temp-file, fsync, rename pattern.
func (j *Journal) ExportFile(ctx context.Context, path string, f Filter) (int, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".jsonl-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) (int, error) {
		tmp.Close()
		os.Remove(tmpName)
		return 0, err
	}

	n, err := j.Export(ctx, tmp, f)
	if err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("syncing temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("renaming temp file: %w", err)
	}
	return n, nil
}

// ReadExport parses a JSONL export. Blank lines are skipped; a malformed
// line is an error.
func ReadExport(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var e Entry
		if err := jsonAPI.Unmarshal(b, &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning export: %w", err)
	}
	return entries, nil
}
