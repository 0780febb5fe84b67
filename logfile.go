package cdnsift

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/satyrius/gonx"
	log "github.com/sirupsen/logrus"

	"github.com/cdnsift/cdnsift/data"
)

// cdnLogFormat describes the fixed 16-field edge access-log line:
// 14-digit timestamp, source address, domain, path, response size,
// processing time, a reserved field, status, referer, another reserved
// field, quoted user agent, a quoted extra field, method, protocol,
// cache status and the billed traffic bytes.
const cdnLogFormat = `$timestamp $remote_addr $host $request_path $response_size $request_time $reserved_a $status $referer $reserved_b"$http_user_agent" "$extra" $request_method $protocol $cache_status $traffic_bytes`

// timestampLayout matches the edge's YYYYMMDDHHMMSS timestamps.
const timestampLayout = "20060102150405"

// LogReader decodes edge access-log lines into records.
type LogReader struct {
	parser *gonx.Parser
}

// NewLogReader creates a LogReader for the edge log format.
func NewLogReader() *LogReader {
	return &LogReader{parser: gonx.NewParser(cdnLogFormat)}
}

// ParseLine decodes a single log line. Lines that do not match the format
// or carry malformed fields are rejected as a whole.
func (lr *LogReader) ParseLine(line string) (data.Record, error) {
	var rec data.Record

	line = strings.TrimSpace(line)
	if line == "" {
		return rec, fmt.Errorf("empty line")
	}

	entry, err := lr.parser.ParseString(line)
	if err != nil {
		return rec, err
	}

	ts, err := entry.Field("timestamp")
	if err != nil {
		return rec, err
	}
	rec.Time, err = time.Parse(timestampLayout, ts)
	if err != nil {
		return rec, fmt.Errorf("bad timestamp %q: %w", ts, err)
	}

	if rec.Source, err = entry.Field("remote_addr"); err != nil {
		return rec, err
	}
	if rec.Domain, err = entry.Field("host"); err != nil {
		return rec, err
	}
	if rec.Path, err = entry.Field("request_path"); err != nil {
		return rec, err
	}

	status, err := entry.Field("status")
	if err != nil {
		return rec, err
	}
	if rec.Status, err = strconv.Atoi(status); err != nil {
		return rec, fmt.Errorf("bad status %q: %w", status, err)
	}

	traffic, err := entry.Field("traffic_bytes")
	if err != nil {
		return rec, err
	}
	if rec.Bytes, err = strconv.ParseInt(traffic, 10, 64); err != nil {
		return rec, fmt.Errorf("bad traffic bytes %q: %w", traffic, err)
	}

	rec.UserAgent, _ = entry.Field("http_user_agent")

	return rec, nil
}

// ReadFile streams all parseable records of one log file, gzip-compressed
// or plain, into out. Unparseable lines are counted and skipped; one bad
// line never aborts the file. Cancelling the context stops the stream even
// when nobody is draining out anymore.
func (lr *LogReader) ReadFile(ctx context.Context, path string, out chan<- data.Record) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	var reader io.Reader = fh
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(fh)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		defer gz.Close()
		reader = gz
	}

	lines := 0
	parsed := 0

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines++
		rec, err := lr.ParseLine(scanner.Text())
		if err != nil {
			log.Tracef("%s line %d: %s", filepath.Base(path), lines, err)
			continue
		}
		parsed++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- rec:
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	log.Infof("%s: parsed %d/%d lines", filepath.Base(path), parsed, lines)

	return nil
}

// FindLogFiles lists the gzip-compressed log files below dir, sorted by
// name so replays are repeatable.
func FindLogFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".gz") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	return files, nil
}
