package tabular

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	alarmEventColumn = "Alarm/Event"
	percentageColumn = "Percentage (%)"
	timestampColumn  = "Timestamp"
)

// CleanedSet bundles the four normalized tables ready for rendering.
type CleanedSet struct {
	Alarms Table
	CGM    Table
	Bolus  Table
	Basal  Table
}

// CleanAll applies the per-source cleanup rules to a raw SourceSet.
func CleanAll(set SourceSet, alarmExclude []string) (CleanedSet, error) {
	var out CleanedSet
	var err error
	if out.Alarms, err = CleanAlarms(set.Alarms, alarmExclude); err != nil {
		return out, err
	}
	if out.CGM, err = CleanCGM(set.CGM); err != nil {
		return out, err
	}
	if out.Bolus, err = CleanBolus(set.Bolus); err != nil {
		return out, err
	}
	if out.Basal, err = CleanBasal(set.Basal); err != nil {
		return out, err
	}
	return out, nil
}

// CleanAlarms drops the trailing device-serial column and removes rows
// whose Alarm/Event code is in the exclusion set. Remaining rows keep
// their original order.
func CleanAlarms(t Table, exclude []string) (Table, error) {
	out, err := dropTrailing(t, 1)
	if err != nil {
		return Table{}, err
	}
	idx, err := out.ColumnIndex(alarmEventColumn)
	if err != nil {
		return Table{}, err
	}
	excluded := make(map[string]struct{}, len(exclude))
	for _, v := range exclude {
		excluded[v] = struct{}{}
	}
	kept := out.Rows[:0]
	for _, row := range out.Rows {
		if idx < len(row) {
			if _, skip := excluded[row[idx]]; skip {
				continue
			}
		}
		kept = append(kept, row)
	}
	out.Rows = kept
	return out, nil
}

// CleanCGM drops the trailing device-serial column.
func CleanCGM(t Table) (Table, error) {
	return dropTrailing(t, 1)
}

// CleanBolus drops the three trailing device/serial metadata columns.
func CleanBolus(t Table) (Table, error) {
	return dropTrailing(t, 3)
}

// CleanBasal drops the two trailing metadata columns plus the
// "Percentage (%)" column, then sorts rows by Timestamp descending.
//
// Ordering note: timestamps are parsed to time.Time and compared
// chronologically rather than lexicographically, so non-padded values
// like "1/9/2024 9:05" sort correctly. The sort is stable; rows with
// equal timestamps keep their original relative order.
func CleanBasal(t Table) (Table, error) {
	out, err := dropTrailing(t, 2)
	if err != nil {
		return Table{}, err
	}
	out, err = dropColumn(out, percentageColumn)
	if err != nil {
		return Table{}, err
	}
	tsIdx, err := out.ColumnIndex(timestampColumn)
	if err != nil {
		return Table{}, err
	}

	parsed := make([]time.Time, len(out.Rows))
	for i, row := range out.Rows {
		if tsIdx >= len(row) {
			return Table{}, fmt.Errorf("%s: row %d is missing a timestamp: %w", out.Name, i, ErrMalformedTable)
		}
		ts, err := ParseTimestamp(row[tsIdx])
		if err != nil {
			return Table{}, fmt.Errorf("%s: row %d: %v: %w", out.Name, i, err, ErrUnexpectedSchema)
		}
		parsed[i] = ts
	}
	order := make([]int, len(out.Rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return parsed[order[a]].After(parsed[order[b]])
	})
	sorted := make([][]string, len(out.Rows))
	for i, idx := range order {
		sorted[i] = out.Rows[idx]
	}
	out.Rows = sorted
	return out, nil
}

// timestampLayouts are tried in order; pump exports are not consistent
// about padding or the date/time separator.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
}

// ParseTimestamp converts a raw export timestamp to a comparable value.
func ParseTimestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", value)
}

func dropTrailing(t Table, n int) (Table, error) {
	if len(t.Columns) <= n {
		return Table{}, fmt.Errorf("%s: need more than %d columns, have %d: %w", t.Name, n, len(t.Columns), ErrUnexpectedSchema)
	}
	out := t.clone()
	out.Columns = out.Columns[:len(out.Columns)-n]
	width := len(out.Columns)
	for i, row := range out.Rows {
		if len(row) > width {
			out.Rows[i] = row[:width]
		}
	}
	return out, nil
}

func dropColumn(t Table, name string) (Table, error) {
	idx, err := t.ColumnIndex(name)
	if err != nil {
		return Table{}, err
	}
	out := t.clone()
	out.Columns = append(out.Columns[:idx], out.Columns[idx+1:]...)
	for i, row := range out.Rows {
		if idx < len(row) {
			out.Rows[i] = append(row[:idx], row[idx+1:]...)
		}
	}
	return out, nil
}
