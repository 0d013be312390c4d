package artifact

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	timestampLayout = "20060102_150405"
	sqlExt          = ".sql"
	gzipExt         = ".gz"
)

// {database}_{kind}_{YYYYMMDD_HHMMSS}[_N].sql[.gz]
var namePattern = regexp.MustCompile(`^(.+)_([a-z]+)_(\d{8}_\d{6})(?:_(\d+))?\.sql(\.gz)?$`)

type parsedName struct {
	database   string
	kind       string
	timestamp  time.Time
	sequence   int
	compressed bool
}

func baseName(database, kind string, ts time.Time, seq int) string {
	base := fmt.Sprintf("%s_%s_%s", database, kind, ts.Format(timestampLayout))
	if seq > 0 {
		base += "_" + strconv.Itoa(seq)
	}
	return base
}

func parseName(filename string, loc *time.Location) (parsedName, bool) {
	m := namePattern.FindStringSubmatch(filename)
	if m == nil {
		return parsedName{}, false
	}

	ts, err := time.ParseInLocation(timestampLayout, m[3], loc)
	if err != nil {
		return parsedName{}, false
	}

	seq := 0
	if m[4] != "" {
		seq, _ = strconv.Atoi(m[4])
	}

	return parsedName{
		database:   m[1],
		kind:       m[2],
		timestamp:  ts,
		sequence:   seq,
		compressed: m[5] != "",
	}, true
}

// RawName strips the compression extension from an artifact name.
func RawName(filename string) string {
	return strings.TrimSuffix(filename, gzipExt)
}

// isDumpFile reports whether filename looks like a dump, parseable or not.
func isDumpFile(filename string) bool {
	return strings.HasSuffix(filename, sqlExt) || strings.HasSuffix(filename, sqlExt+gzipExt)
}

func IsCompressed(filename string) bool {
	return strings.HasSuffix(filename, gzipExt)
}
