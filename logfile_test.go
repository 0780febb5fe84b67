package cdnsift

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdnsift/cdnsift/data"
)

const sampleLine = `20250601143015 203.0.113.10 cdn.example.com /assets/app.js 20480 12 - 200 https://example.com/ - "Mozilla/5.0 (Windows NT 10.0; Win64; x64)" "-" GET HTTP/1.1 HIT 21504`

func TestParseLine(t *testing.T) {
	rec, err := NewLogReader().ParseLine(sampleLine)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 6, 1, 14, 30, 15, 0, time.UTC), rec.Time)
	assert.Equal(t, "203.0.113.10", rec.Source)
	assert.Equal(t, "cdn.example.com", rec.Domain)
	assert.Equal(t, "/assets/app.js", rec.Path)
	assert.Equal(t, 200, rec.Status)
	assert.Equal(t, int64(21504), rec.Bytes)
	assert.Equal(t, "Mozilla/5.0 (Windows NT 10.0; Win64; x64)", rec.UserAgent)
}

func TestParseLineRejectsMalformedFields(t *testing.T) {
	lr := NewLogReader()

	bad := []string{
		"",
		"   ",
		"garbage",
		// timestamp not a timestamp
		`notatime 203.0.113.10 cdn.example.com / 1 1 - 200 - - "ua" "-" GET HTTP/1.1 HIT 1`,
		// status not numeric
		`20250601143015 203.0.113.10 cdn.example.com / 1 1 - abc - - "ua" "-" GET HTTP/1.1 HIT 1`,
		// traffic bytes not numeric
		`20250601143015 203.0.113.10 cdn.example.com / 1 1 - 200 - - "ua" "-" GET HTTP/1.1 HIT xyz`,
	}

	for _, line := range bad {
		_, err := lr.ParseLine(line)
		assert.Error(t, err, "line %q", line)
	}
}

func writeGzipLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "part-00000.gz")

	fh, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(fh)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, fh.Close())

	return path
}

func TestReadFileGzip(t *testing.T) {
	path := writeGzipLog(t, sampleLine+"\n"+"not a log line\n"+sampleLine+"\n")

	out := make(chan data.Record, 16)
	require.NoError(t, NewLogReader().ReadFile(context.Background(), path, out))
	close(out)

	records := make([]data.Record, 0, 2)
	for rec := range out {
		records = append(records, rec)
	}

	// the malformed middle line is skipped, not fatal
	require.Len(t, records, 2)
	assert.Equal(t, "203.0.113.10", records[0].Source)
}

func TestReadFileStopsWhenCanceled(t *testing.T) {
	lines := strings.Repeat(sampleLine+"\n", 100)
	path := writeGzipLog(t, lines)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// nobody drains the channel; without the context the send would
	// block once the buffer fills
	out := make(chan data.Record, 1)
	err := NewLogReader().ReadFile(ctx, path, out)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindLogFilesSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.gz", "a.gz", "notes.txt", "c.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.gz"), 0755))

	files, err := FindLogFiles(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.gz"),
		filepath.Join(dir, "b.gz"),
	}, files)
}
