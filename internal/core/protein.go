package core

import (
	"encoding/csv"
	"strconv"
	"strings"
)

// ParseProteinCSV parses a protein-abundance table with the required
// "protein,value" header.
func ParseProteinCSV(text string) (map[string]float64, error) {
	return parseNamedValueCSV(text, "protein")
}

// parseNamedValueCSV parses a two-column "<name>,value" table shared by the
// gene and protein payload formats.
func parseNamedValueCSV(text, nameColumn string) (map[string]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, InputErrorf("%s payload is empty", nameColumn)
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, InputErrorf("malformed %s csv: %v", nameColumn, err)
	}
	if len(records) == 0 {
		return nil, InputErrorf("%s payload is empty", nameColumn)
	}

	header := records[0]
	if len(header) < 2 || strings.ToLower(strings.TrimSpace(header[0])) != nameColumn || strings.ToLower(strings.TrimSpace(header[1])) != "value" {
		return nil, InputErrorf("%s csv missing required '%s,value' header", nameColumn, nameColumn)
	}
	if len(records) == 1 {
		return nil, InputErrorf("%s csv has no data rows", nameColumn)
	}

	values := make(map[string]float64, len(records)-1)
	for i, record := range records[1:] {
		if len(record) < 2 {
			return nil, InputErrorf("%s csv row %d has %d columns, expected 2", nameColumn, i+2, len(record))
		}
		name := strings.TrimSpace(record[0])
		if name == "" {
			return nil, InputErrorf("%s csv row %d has an empty %s name", nameColumn, i+2, nameColumn)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, InputErrorf("%s csv row %d has non-numeric value %q", nameColumn, i+2, record[1])
		}
		values[name] = value
	}

	return values, nil
}
