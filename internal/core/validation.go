package core

// validation.go coerces raw CSV rows into NormalizedRecords.
//
// Every field of a row is checked before returning, so a single RowError lists
// all problems on that line. Empty cells count as absent.

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// FieldType is the target type of a product column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldFloat
	FieldTimestamp
)

// FieldSpec describes one column of the product document.
type FieldSpec struct {
	Name     string
	Required bool
	Type     FieldType
}

// ProductFields is the column schema of an ingestion document. Values are
// trimmed before coercion, so " B1" is stored as "B1", and an empty text
// field counts as absent: a blank short_desc is stored as null.
var ProductFields = []FieldSpec{
	{Name: "id", Type: FieldText},
	{Name: "part_number", Required: true, Type: FieldText},
	{Name: "branch_id", Required: true, Type: FieldText},
	{Name: "part_price", Required: true, Type: FieldFloat},
	{Name: "short_desc", Type: FieldText},
	{Name: "createdat", Type: FieldTimestamp},
	{Name: "updatedat", Type: FieldTimestamp},
}

// timestampLayouts are tried in order for createdat/updatedat.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ValidateRow checks raw against ProductFields and returns the typed record.
// line is carried into the returned *RowError for diagnostics.
func ValidateRow(raw RawRow, line int) (NormalizedRecord, error) {
	var (
		rec  NormalizedRecord
		errs []ValidationError
	)

	for _, field := range ProductFields {
		value, present := raw[field.Name]
		value = strings.TrimSpace(value)
		if !present || value == "" {
			if field.Required {
				errs = append(errs, ValidationError{
					Field:   field.Name,
					Message: "required field is missing",
				})
			}
			continue
		}

		switch field.Type {
		case FieldFloat:
			f, err := parseFloat(value)
			if err != nil {
				errs = append(errs, ValidationError{Field: field.Name, Value: value, Message: "invalid number"})
				continue
			}
			rec.PartPrice = f

		case FieldTimestamp:
			ts, err := parseTimestamp(value)
			if err != nil {
				errs = append(errs, ValidationError{Field: field.Name, Value: value, Message: "invalid date"})
				continue
			}
			if field.Name == "createdat" {
				rec.CreatedAt = &ts
			} else {
				rec.UpdatedAt = &ts
			}

		default:
			v := value
			switch field.Name {
			case "id":
				rec.ID = &v
			case "part_number":
				rec.PartNumber = v
			case "branch_id":
				rec.BranchID = v
			case "short_desc":
				rec.ShortDesc = &v
			}
		}
	}

	if len(errs) > 0 {
		return NormalizedRecord{}, &RowError{Line: line, Errors: errs}
	}
	return rec, nil
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, strconv.ErrRange
	}
	return f, nil
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	// Unix seconds
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, lastErr
}
