package tabular

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestReadCSVSkipsBanner(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "cgm.csv", "CGM Data Export v1\nTimestamp,CGM Glucose Value (mmol/l),Serial Number\n2024-01-09 02:00:00,3.8,881235\n")

	tbl, err := ReadCSV(path, "cgm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tbl.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d: %v", len(tbl.Columns), tbl.Columns)
	}
	if tbl.Columns[0] != "Timestamp" {
		t.Fatalf("banner line not skipped, first column is %q", tbl.Columns[0])
	}
	if len(tbl.Rows) != 1 || tbl.Rows[0][1] != "3.8" {
		t.Fatalf("unexpected rows: %v", tbl.Rows)
	}
}

func TestReadCSVMissingFile(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"), "alarms")
	if !errors.Is(err, ErrMissingDataFile) {
		t.Fatalf("expected ErrMissingDataFile, got %v", err)
	}
}

func TestReadCSVInconsistentColumns(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "bad.csv", "Banner\na,b,c\n1,2\n")

	_, err := ReadCSV(path, "bolus")
	if !errors.Is(err, ErrMalformedTable) {
		t.Fatalf("expected ErrMalformedTable, got %v", err)
	}
}

func TestLoadAllReadsFixedPaths(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "alarms_data_1.csv", "Banner\nTimestamp,Alarm/Event,Serial Number\n2024-01-09 02:00:00,tandem_cgm_low,881235\n")
	writeCSV(t, dir, "cgm_data_1.csv", "Banner\nTimestamp,CGM Glucose Value (mmol/l),Serial Number\n2024-01-09 02:00:00,3.8,881235\n")
	writeCSV(t, dir, "Insulin data/bolus_data_1.csv", "Banner\nTimestamp,Insulin Delivered (U),Carbs (g),Device,Serial Number,Extra\n2024-01-09 08:00:00,4.5,40,pump,881235,x\n")
	writeCSV(t, dir, "Insulin data/basal_data_1.csv", "Banner\nTimestamp,Rate,Percentage (%),Insulin Type,Device,Serial Number\n2024-01-09 08:00:00,0.5,100,Scheduled,pump,881235\n")

	set, err := LoadAll(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Alarms.Name != "alarms" || set.CGM.Name != "cgm" || set.Bolus.Name != "bolus" || set.Basal.Name != "basal" {
		t.Fatalf("unexpected table names: %+v", set)
	}
}

func TestLoadAllMissingInsulinFile(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "alarms_data_1.csv", "Banner\nTimestamp,Alarm/Event,Serial Number\n")
	writeCSV(t, dir, "cgm_data_1.csv", "Banner\nTimestamp,Value,Serial Number\n")

	_, err := LoadAll(dir)
	if !errors.Is(err, ErrMissingDataFile) {
		t.Fatalf("expected ErrMissingDataFile, got %v", err)
	}
}

func TestColumnIndexMissing(t *testing.T) {
	tbl := Table{Name: "basal", Columns: []string{"Timestamp", "Rate"}}
	if _, err := tbl.ColumnIndex("Percentage (%)"); !errors.Is(err, ErrUnexpectedSchema) {
		t.Fatalf("expected ErrUnexpectedSchema, got %v", err)
	}
}
