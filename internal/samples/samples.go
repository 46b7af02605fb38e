// Package samples reads the sample metadata table: one geolocated, dated sample per row.
package samples

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robert-malhotra/scene-chipper/internal/geowindow"
)

// Sample is one measurement anchored at a place and a date.
type Sample struct {
	UID       string
	Latitude  float64
	Longitude float64
	Date      time.Time
	Split     string
}

// Required column names.
const (
	ColumnUID       = "uid"
	ColumnLatitude  = "latitude"
	ColumnLongitude = "longitude"
	ColumnDate      = "date"
	ColumnSplit     = "split"
)

// ErrMalformed is returned for rows that cannot be parsed.
var ErrMalformed = errors.New("malformed sample row")

// ReadFile reads samples from a CSV file.
func ReadFile(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open samples file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses a CSV table with a header row. Columns may appear in any order and extra
// columns are ignored; split is optional. Dates use the ISO layout 2006-01-02.
func Read(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, name := range []string{ColumnUID, ColumnLatitude, ColumnLongitude, ColumnDate} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}
	splitCol, hasSplit := cols[ColumnSplit]

	var out []Sample
	seen := make(map[string]int)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		s, err := parseRow(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if hasSplit && splitCol < len(rec) {
			s.Split = strings.TrimSpace(rec[splitCol])
		}
		if prev, dup := seen[s.UID]; dup {
			return nil, fmt.Errorf("line %d: duplicate uid %q first seen on line %d: %w", line, s.UID, prev, ErrMalformed)
		}
		seen[s.UID] = line
		out = append(out, s)
	}
	return out, nil
}

func parseRow(rec []string, cols map[string]int) (Sample, error) {
	field := func(name string) string {
		if i := cols[name]; i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	uid := field(ColumnUID)
	if uid == "" {
		return Sample{}, fmt.Errorf("empty uid: %w", ErrMalformed)
	}
	lat, err := strconv.ParseFloat(field(ColumnLatitude), 64)
	if err != nil {
		return Sample{}, fmt.Errorf("sample %s: latitude: %v: %w", uid, err, ErrMalformed)
	}
	lon, err := strconv.ParseFloat(field(ColumnLongitude), 64)
	if err != nil {
		return Sample{}, fmt.Errorf("sample %s: longitude: %v: %w", uid, err, ErrMalformed)
	}
	date, err := time.Parse(geowindow.DateLayout, field(ColumnDate))
	if err != nil {
		return Sample{}, fmt.Errorf("sample %s: date: %v: %w", uid, err, ErrMalformed)
	}

	return Sample{UID: uid, Latitude: lat, Longitude: lon, Date: date}, nil
}

// Filter returns the samples whose split is one of splits. No splits returns all samples.
func Filter(in []Sample, splits ...string) []Sample {
	if len(splits) == 0 {
		return in
	}
	want := make(map[string]bool, len(splits))
	for _, s := range splits {
		want[s] = true
	}
	var out []Sample
	for _, s := range in {
		if want[s.Split] {
			out = append(out, s)
		}
	}
	return out
}
