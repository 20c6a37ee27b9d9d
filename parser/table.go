// parser/table.go
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Themichaelreimer/medistat/models"
)

// Aliases maps the short column codes used in HMD life tables to
// human-readable statistic names.
var Aliases = map[string]string{
	"mx": "Central Death Rate",
	"qx": "Probability of Death",
	"ax": "Average Survival Fraction",
	"lx": "Survivorship",
	"dx": "Deaths",
	"Lx": "Person-Years Lived",
	"Tx": "Person-Years Remaining",
	"ex": "Life Expectancy",
}

// perHundredThousand lists the statistics reported against the 100,000
// radix of the life table. Their raw values are sample counts per 100k and
// get shifted down to probability scale.
var perHundredThousand = map[string]bool{
	"Survivorship":           true,
	"Deaths":                 true,
	"Person-Years Lived":     true,
	"Person-Years Remaining": true,
}

// sexColumns are column headers that label a sex rather than a statistic.
// A cell under one of these contributes a sex tag for that cell's value
// instead of a statistic tag.
var sexColumns = map[string]string{
	"Male":   "Male",
	"Female": "Female",
	"Total":  "Both sexes",
}

// missingCell is the sentinel HMD uses for absent observations. Cells
// equal to it produce no datum at all, never a zero or null.
const missingCell = "."

// SkipError describes one line that was dropped while parsing a table.
// The rest of the file always continues past it.
type SkipError struct {
	Line   int
	Reason string
}

func (e SkipError) Error() string {
	return fmt.Sprintf("line %d skipped: %s", e.Line, e.Reason)
}

// ParseHeader extracts the country and dataset name from the first line of
// an HMD data file, which looks like:
//
//	Canada, Life tables (period 1x1), Last modified: ...
//
// The trailing parenthetical is stripped from the dataset name. Both
// results are empty when the line has fewer than two comma tokens.
func ParseHeader(firstLine string) (country, datasetName string) {
	tokens := strings.Split(firstLine, ",")
	if len(tokens) < 2 {
		return "", ""
	}
	country = strings.TrimSpace(tokens[0])
	datasetName = strings.TrimSpace(strings.SplitN(tokens[1], "(", 2)[0])
	return country, datasetName
}

// SexFromFilename infers the sex of a whole file from HMD's file naming
// convention. Empty when the name carries no marker.
func SexFromFilename(name string) string {
	switch {
	case strings.Contains(name, "flt"):
		return "Female"
	case strings.Contains(name, "mlt"):
		return "Male"
	case strings.Contains(name, "blt"):
		return "Both sexes"
	}
	return ""
}

// ParseTable converts one textual statistics table into datums. The first
// line is file metadata; the first following non-empty line with more than
// one whitespace-separated token is the column header row; every later
// non-empty line is a data row zipped positionally against the headers
// (ragged rows tolerated). Faulty rows are returned as SkipErrors and do
// not stop the file.
func ParseTable(fileName, text string) ([]models.ParsedDatum, []SkipError) {
	lines := strings.Split(text, "\n")
	country, datasetName := ParseHeader(lines[0])
	fileSex := SexFromFilename(fileName)

	var (
		headers []string
		data    []models.ParsedDatum
		skips   []SkipError
	)

	for i, line := range lines[1:] {
		lineNo := i + 2 // 1-based, counting the metadata line
		row := strings.Fields(line)
		if len(row) == 0 {
			continue
		}

		if headers == nil {
			if len(row) > 1 {
				headers = row
			}
			continue
		}

		rowData, err := parseRow(headers, row, country, datasetName, fileSex)
		if err != nil {
			skips = append(skips, SkipError{Line: lineNo, Reason: err.Error()})
			continue
		}
		data = append(data, rowData...)
	}

	return data, skips
}

// parseRow turns one data row into datums, one per statistic cell. Any
// fault drops the whole row.
func parseRow(headers, row []string, country, datasetName, fileSex string) ([]models.ParsedDatum, error) {
	cells := make(map[string]string)
	for i, header := range headers {
		if i >= len(row) {
			break
		}
		cells[header] = row[i]
	}

	yearText, ok := cells["Year"]
	if !ok {
		return nil, fmt.Errorf("no Year value")
	}
	year, err := strconv.Atoi(yearText)
	if err != nil {
		return nil, fmt.Errorf("bad Year value %q", yearText)
	}
	date := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)

	// Missing age normalizes to 0; an open top bracket like "110+" keeps
	// its base age.
	age := 0
	if ageText, ok := cells["Age"]; ok {
		ageText = strings.TrimSuffix(ageText, "+")
		age, err = strconv.Atoi(ageText)
		if err != nil {
			return nil, fmt.Errorf("bad Age value %q", cells["Age"])
		}
	}

	var data []models.ParsedDatum
	for _, header := range headers {
		if header == "Year" || header == "Age" {
			continue
		}
		cell, ok := cells[header]
		if !ok || cell == missingCell {
			continue
		}

		statisticName := header
		if alias, ok := Aliases[header]; ok {
			statisticName = alias
		}
		sex := fileSex
		if label, ok := sexColumns[header]; ok {
			sex = label
			statisticName = ""
		}

		value, err := decimal.NewFromString(cell)
		if err != nil {
			return nil, fmt.Errorf("bad value %q in column %q", cell, header)
		}
		if perHundredThousand[statisticName] {
			value = value.Shift(-5)
		}

		tags := make([]string, 0, 4)
		for _, tag := range []string{country, datasetName, statisticName, sex} {
			if tag != "" {
				tags = append(tags, tag)
			}
		}

		data = append(data, models.ParsedDatum{
			Tags:  tags,
			Date:  date,
			Age:   age,
			Value: value,
		})
	}
	return data, nil
}
