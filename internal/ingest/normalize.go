package ingest

import (
	"strings"

	"github.com/talentsift/talentsift/internal/candidate"
	"github.com/talentsift/talentsift/internal/schema"
)

// nullTokens collapse to an empty value during normalization.
var nullTokens = map[string]bool{
	"":     true,
	"-":    true,
	"n/a":  true,
	"na":   true,
	"none": true,
	"null": true,
}

// Normalize applies a mapping to every parsed row of a file, producing
// canonical candidate records. Rows missing required fields are still
// emitted, flagged incomplete; the insufficient-data verdict belongs to
// evaluation, not ingestion.
func Normalize(file *File, mapping *Mapping, fileIndex int) []*candidate.Record {
	records := make([]*candidate.Record, 0, len(file.Rows))
	for rowIndex, row := range file.Rows {
		rec := normalizeRow(row, mapping)
		rec.SourceFile = file.Path
		rec.FileIndex = fileIndex
		rec.RowIndex = rowIndex
		rec.Incomplete = len(rec.MissingRequired()) > 0
		records = append(records, rec)
	}
	return records
}

func normalizeRow(row map[string]string, mapping *Mapping) *candidate.Record {
	fields := make(map[string]string, len(schema.AllColumns))
	for _, col := range schema.AllColumns {
		fields[col] = ""
	}

	for header, field := range mapping.Columns {
		value := cleanValue(row[header])
		if value == "" {
			continue
		}

		switch {
		case mapping.Source == schema.SourceSeekout && field == schema.FieldLinkedinURL:
			// SeekOut href cells carry arbitrary links; keep only profile URLs.
			if strings.Contains(strings.ToLower(value), "linkedin.com") {
				fields[field] = value
			}
		case mapping.Source == schema.SourceSeekout && field == schema.FieldFirstName:
			first, last := SplitFullName(value)
			setIfEmpty(fields, schema.FieldFirstName, first)
			setIfEmpty(fields, schema.FieldLastName, last)
		case mapping.Source == schema.SourceSeekout && field == schema.FieldTitle:
			title, company := ParseTitleAtCompany(value)
			setIfEmpty(fields, schema.FieldTitle, title)
			setIfEmpty(fields, schema.FieldCompanyName, company)
		case mapping.Source == schema.SourceWrangle && field == schema.FieldFirstName:
			first, last := SplitFullName(value)
			fields[schema.FieldFirstName] = first
			fields[schema.FieldLastName] = last
		default:
			// Several source columns can feed one canonical field.
			if fields[field] != "" {
				fields[field] += " " + value
			} else {
				fields[field] = value
			}
		}
	}

	return candidate.FromFields(fields)
}

func setIfEmpty(fields map[string]string, field, value string) {
	if fields[field] == "" && value != "" {
		fields[field] = value
	}
}

func cleanValue(value string) string {
	value = strings.TrimSpace(value)
	if nullTokens[strings.ToLower(value)] {
		return ""
	}
	return value
}

// SplitFullName splits a display name into first and last name. Everything
// after the first token belongs to the last name.
func SplitFullName(full string) (string, string) {
	parts := strings.Fields(strings.TrimSpace(full))
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// ParseTitleAtCompany splits SeekOut's "Title at Company" detail strings.
func ParseTitleAtCompany(text string) (string, string) {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, " at "); idx > 0 {
		return strings.TrimSpace(text[:idx]), strings.TrimSpace(text[idx+len(" at "):])
	}
	return text, ""
}
