package journal

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"
)

//go:embed trips.csv.tmpl
var tripsCsvTmpl string

//go:embed stop_times.csv.tmpl
var stopTimesCsvTmpl string

var funcMap = template.FuncMap{
	"Field": func(s string) string {
		if !strings.ContainsAny(s, ",\"\r\n") {
			return s
		}
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	},
	"NullableUnix": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return fmt.Sprintf("%d", t.Unix())
	},
	"NullableUint": func(d *uint32) string {
		if d == nil {
			return ""
		}
		return fmt.Sprintf("%d", *d)
	},
}

var tripsCsv *template.Template = template.Must(template.New("trips.csv.tmpl").Funcs(funcMap).Parse(tripsCsvTmpl))
var stopTimesCsv *template.Template = template.Must(template.New("stop_times.csv.tmpl").Funcs(funcMap).Parse(stopTimesCsvTmpl))

// CsvExport contains CSV exports of a journal
type CsvExport struct {
	TripsCsv     []byte
	StopTimesCsv []byte
}

func (journal *Journal) ExportToCsv() (*CsvExport, error) {
	var tripsB bytes.Buffer
	err := tripsCsv.Execute(&tripsB, journal.Trips)
	if err != nil {
		return nil, err
	}

	var stopTimesB bytes.Buffer
	err = stopTimesCsv.Execute(&stopTimesB, journal.Trips)
	if err != nil {
		return nil, err
	}
	return &CsvExport{
		TripsCsv:     tripsB.Bytes(),
		StopTimesCsv: stopTimesB.Bytes(),
	}, nil
}
