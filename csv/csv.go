// Package csv wraps the stdlib csv reader with column lookup by header name, for reading GTFS
// static tables.
package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

type File struct {
	name                   string
	csvReader              *csv.Reader
	headerMap              map[string]int
	rowNumber              int
	missingRequiredColumns []string
	cells                  []string
	missingKeys            []string
	ioErr                  error
	closer                 func() error
}

// New reads the header row of the file. The reader is closed by File.Close, or immediately if
// the header cannot be read.
func New(name string, reader io.ReadCloser) (*File, error) {
	csvReader := BOMAwareCSVReader(reader)
	header, err := csvReader.Read()
	if err == io.EOF {
		reader.Close()
		return nil, fmt.Errorf("%s contains no rows", name)
	} else if err != nil {
		reader.Close()
		return nil, fmt.Errorf("failed to read header of %s: %w", name, err)
	}
	csvReader.ReuseRecord = true
	m := map[string]int{}
	for i, column := range header {
		m[column] = i
	}
	return &File{
		name:      name,
		headerMap: m,
		csvReader: csvReader,
		closer:    reader.Close,
	}, nil
}

func (f *File) Name() string {
	return f.name
}

type RequiredColumn struct {
	i int
	s string
	f *File
}

func (f *File) RequiredColumn(s string) RequiredColumn {
	i, ok := f.headerMap[s]
	if !ok {
		f.missingRequiredColumns = append(f.missingRequiredColumns, s)
		i = -1
	}
	return RequiredColumn{i, s, f}
}

func (f *File) MissingRequiredColumns() []string {
	return f.missingRequiredColumns
}

// Read returns the cell of the current row. An empty or absent cell is recorded as a missing
// key of the row.
func (c RequiredColumn) Read() string {
	if c.i < 0 || c.i >= len(c.f.cells) || c.f.cells[c.i] == "" {
		c.f.missingKeys = append(c.f.missingKeys, c.s)
		return ""
	}
	return c.f.cells[c.i]
}

// ReadUint32 reads the cell as an unsigned integer. A malformed cell is recorded as missing.
func (c RequiredColumn) ReadUint32() uint32 {
	s := c.Read()
	if s == "" {
		return 0
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		c.f.missingKeys = append(c.f.missingKeys, c.s)
		return 0
	}
	return uint32(n)
}

type OptionalColumn struct {
	i int
	f *File
}

func (f *File) OptionalColumn(s string) OptionalColumn {
	i, ok := f.headerMap[s]
	if !ok {
		i = -1
	}
	return OptionalColumn{i: i, f: f}
}

func (c OptionalColumn) Read() string {
	return c.ReadOr("")
}

func (c OptionalColumn) ReadOr(s string) string {
	if c.i < 0 || c.i >= len(c.f.cells) {
		return s
	}
	return c.f.cells[c.i]
}

func (f *File) NextRow() bool {
	cells, err := f.csvReader.Read()
	if err != nil {
		f.cells = nil
		if err != io.EOF {
			f.ioErr = fmt.Errorf("failed to read row %d of %s: %w", f.rowNumber+1, f.name, err)
		}
		return false
	}
	f.rowNumber++
	f.cells = cells
	f.missingKeys = nil
	return true
}

// RowNumber is the 1-based number of the current data row.
func (f *File) RowNumber() int {
	return f.rowNumber
}

// MissingRowKeys are the required columns that were empty in the current row.
func (f *File) MissingRowKeys() []string {
	return f.missingKeys
}

func (f *File) Close() error {
	closeErr := f.closer()
	if f.ioErr != nil {
		return f.ioErr
	}
	return closeErr
}

// From: https://stackoverflow.com/a/76023436
//
// BOMAwareCSVReader will detect a UTF BOM (Byte Order Mark) at the
// start of the data and transform to UTF8 accordingly.
// If there is no BOM, it will read the data without any transformation.
func BOMAwareCSVReader(reader io.Reader) *csv.Reader {
	var transformer = unicode.BOMOverride(encoding.Nop.NewDecoder())
	return csv.NewReader(transform.NewReader(reader, transformer))
}
