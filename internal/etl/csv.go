// Package etl turns the user-behavior dataset into aggregate inputs and
// feeds them to the service, either through the ingestion queue or directly.
package etl

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/oksasatya/usage-aggregate-service/internal/domain/entity"
)

// Dataset column headers.
const (
	ColUserID          = "User ID"
	ColDeviceModel     = "Device Model"
	ColOperatingSystem = "Operating System"
	ColAppUsageTime    = "App Usage Time (min/day)"
	ColScreenOnTime    = "Screen On Time (hours/day)"
	ColBatteryDrain    = "Battery Drain (mAh/day)"
	ColAppsInstalled   = "Number of Apps Installed"
	ColDataUsage       = "Data Usage (MB/day)"
	ColAge             = "Age"
	ColGender          = "Gender"
	ColBehaviorClass   = "User Behavior Class"
)

var requiredColumns = []string{
	ColDeviceModel, ColOperatingSystem, ColAppUsageTime, ColScreenOnTime,
	ColBatteryDrain, ColAppsInstalled, ColDataUsage, ColAge, ColGender, ColBehaviorClass,
}

var behaviorLabels = map[int]string{
	1: "very_light",
	2: "light",
	3: "moderate",
	4: "heavy",
	5: "extreme",
}

// BehaviorLabel maps a dataset behavior class (1..5) to its label.
func BehaviorLabel(class int) (string, error) {
	label, ok := behaviorLabels[class]
	if !ok {
		return "", fmt.Errorf("behavior class %d out of range 1..5", class)
	}
	return label, nil
}

// Row is one parsed dataset record. SourceID is the dataset's own user id,
// kept for reporting only; the database assigns the real identifier.
type Row struct {
	Line     int                   `json:"line"`
	SourceID string                `json:"source_id,omitempty"`
	Input    entity.AggregateInput `json:"input"`
}

// RowError reports a record that could not be parsed.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e RowError) Unwrap() error { return e.Err }

// ReadCSV parses every record of r. Malformed records are returned as
// RowErrors and skipped; only a missing header or an I/O failure aborts.
func ReadCSV(r io.Reader) ([]Row, []RowError, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("csv: empty input")
		}
		return nil, nil, fmt.Errorf("csv: read header: %w", err)
	}
	idx, err := indexColumns(header)
	if err != nil {
		return nil, nil, err
	}

	var (
		out []Row
		bad []RowError
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				bad = append(bad, RowError{Line: pe.Line, Err: pe.Err})
				continue
			}
			return out, bad, fmt.Errorf("csv: read: %w", err)
		}
		line, _ := cr.FieldPos(0)
		row, err := parseRecord(rec, idx)
		if err != nil {
			bad = append(bad, RowError{Line: line, Err: err})
			continue
		}
		row.Line = line
		out = append(out, row)
	}
	return out, bad, nil
}

func indexColumns(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("csv: missing columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func parseRecord(rec []string, idx map[string]int) (Row, error) {
	field := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var (
		in  entity.AggregateInput
		err error
	)
	if in.Age, err = wholeNumber(ColAge, field(ColAge)); err != nil {
		return Row{}, err
	}
	in.Gender = field(ColGender)
	if in.Gender == "" {
		return Row{}, fmt.Errorf("%s is empty", ColGender)
	}

	in.Device.DeviceModel = field(ColDeviceModel)
	in.Device.OperatingSystem = field(ColOperatingSystem)
	if in.Device.DeviceModel == "" || in.Device.OperatingSystem == "" {
		return Row{}, errors.New("device model and operating system are required")
	}

	u := &in.Usage
	if u.AppUsageTime, err = wholeNumber(ColAppUsageTime, field(ColAppUsageTime)); err != nil {
		return Row{}, err
	}
	if u.ScreenOnTime, err = nonNegative(ColScreenOnTime, field(ColScreenOnTime)); err != nil {
		return Row{}, err
	}
	if u.BatteryDrain, err = wholeNumber(ColBatteryDrain, field(ColBatteryDrain)); err != nil {
		return Row{}, err
	}
	if u.AppsInstalled, err = wholeNumber(ColAppsInstalled, field(ColAppsInstalled)); err != nil {
		return Row{}, err
	}
	if u.DataUsage, err = wholeNumber(ColDataUsage, field(ColDataUsage)); err != nil {
		return Row{}, err
	}
	if u.BehaviorClass, err = wholeNumber(ColBehaviorClass, field(ColBehaviorClass)); err != nil {
		return Row{}, err
	}
	if in.UserBehavior, err = BehaviorLabel(u.BehaviorClass); err != nil {
		return Row{}, err
	}

	return Row{SourceID: field(ColUserID), Input: in}, nil
}

func nonNegative(col, s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("%s is empty", col)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s: %q is not a number", col, s)
	}
	if f < 0 {
		return 0, fmt.Errorf("%s: %v is negative", col, f)
	}
	return f, nil
}

// wholeNumber accepts "42" and "42.0" but rejects fractional values.
func wholeNumber(col, s string) (int, error) {
	f, err := nonNegative(col, s)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, fmt.Errorf("%s: %v is not a whole number", col, f)
	}
	return int(f), nil
}
