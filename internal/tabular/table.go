// Package tabular loads the pump export CSV files and applies the
// per-source cleanup rules that prepare them for prompt rendering.
package tabular

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Error taxonomy for the load/clean stages. Callers match with errors.Is.
var (
	ErrMissingDataFile  = errors.New("expected data file missing")
	ErrMalformedTable   = errors.New("malformed table")
	ErrUnexpectedSchema = errors.New("unexpected table schema")
)

// Table is an ordered, fully in-memory view of one CSV source.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Relative paths inside an extracted export archive.
const (
	alarmsPath = "alarms_data_1.csv"
	cgmPath    = "cgm_data_1.csv"
	bolusPath  = "Insulin data/bolus_data_1.csv"
	basalPath  = "Insulin data/basal_data_1.csv"
)

// SourceSet bundles the four raw tables read from one archive.
type SourceSet struct {
	Alarms Table
	CGM    Table
	Bolus  Table
	Basal  Table
}

// LoadAll reads the four fixed-path CSV files from an extracted archive
// directory.
func LoadAll(dir string) (SourceSet, error) {
	var set SourceSet
	var err error
	if set.Alarms, err = ReadCSV(filepath.Join(dir, alarmsPath), "alarms"); err != nil {
		return set, err
	}
	if set.CGM, err = ReadCSV(filepath.Join(dir, cgmPath), "cgm"); err != nil {
		return set, err
	}
	if set.Bolus, err = ReadCSV(filepath.Join(dir, bolusPath), "bolus"); err != nil {
		return set, err
	}
	if set.Basal, err = ReadCSV(filepath.Join(dir, basalPath), "basal"); err != nil {
		return set, err
	}
	return set, nil
}

// ReadCSV parses a pump export CSV. The first physical line is a
// human-readable banner and is discarded before the real header row.
func ReadCSV(path, name string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Table{}, fmt.Errorf("%s (%s): %w", name, path, ErrMissingDataFile)
		}
		return Table{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if _, err := br.ReadString('\n'); err != nil && err != io.EOF {
		return Table{}, fmt.Errorf("%s: skip banner: %w", name, ErrMalformedTable)
	}

	r := csv.NewReader(br)
	header, err := r.Read()
	if err != nil {
		return Table{}, fmt.Errorf("%s: read header: %v: %w", name, err, ErrMalformedTable)
	}

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("%s: read row: %v: %w", name, err, ErrMalformedTable)
		}
		rows = append(rows, record)
	}

	return Table{Name: name, Columns: header, Rows: rows}, nil
}

// ColumnIndex locates a column by exact name.
func (t Table) ColumnIndex(name string) (int, error) {
	for i, col := range t.Columns {
		if col == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%s: column %q not found: %w", t.Name, name, ErrUnexpectedSchema)
}

func (t Table) clone() Table {
	out := Table{Name: t.Name, Columns: append([]string{}, t.Columns...)}
	out.Rows = make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out.Rows[i] = append([]string{}, row...)
	}
	return out
}
