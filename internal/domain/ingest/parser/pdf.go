package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts transaction lines from PDF statements. Statements are
// assumed to lay out one transaction per text row: a leading date, a
// description and a trailing amount. Rows that do not fit the shape
// (headers, footers, balances) are skipped, not errored.
type PDFParser struct{}

// NewPDFParser creates a PDF statement parser.
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Parse buffers the file (the PDF format needs random access) and scans
// every text row of every page.
func (p *PDFParser) Parse(r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	result := &Result{}
	rowNum := 0
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			result.Errors = append(result.Errors, ParseError{
				Row:     rowNum,
				Column:  "page",
				Message: fmt.Sprintf("failed to extract text from page %d: %v", pageNum, err),
			})
			continue
		}

		for _, row := range rows {
			rowNum++
			var parts []string
			for _, text := range row.Content {
				parts = append(parts, text.S)
			}
			line := cleanDescription(strings.Join(parts, " "))
			if line == "" {
				continue
			}
			result.TotalRows++

			rec, ok := p.parseLine(line, rowNum)
			if !ok {
				result.SkippedRows++
				continue
			}
			result.Records = append(result.Records, *rec)
			result.ParsedRows++
		}
	}
	return result, nil
}

// parseLine matches the date/description/amount shape. The date may span
// up to three tokens ("Jan 2, 2006").
func (p *PDFParser) parseLine(line string, rowNum int) (*RawRecord, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, false
	}

	dateTokens := 0
	var lineDate time.Time
	for n := 1; n <= 3 && n < len(fields)-1; n++ {
		if d, err := parseDate(strings.Join(fields[:n], " ")); err == nil {
			lineDate = d
			dateTokens = n
			break
		}
	}
	if dateTokens == 0 {
		return nil, false
	}

	amount, err := parseAmount(fields[len(fields)-1])
	if err != nil {
		return nil, false
	}

	desc := strings.Join(fields[dateTokens:len(fields)-1], " ")
	if desc == "" {
		return nil, false
	}

	rec := &RawRecord{
		Date:        lineDate,
		Description: desc,
		Amount:      amount,
		Row:         rowNum,
	}
	// PDF statements carry no direction column; the sign is the direction.
	if amount.IsNegative() {
		rec.Type = "debit"
	} else {
		rec.Type = "credit"
	}
	return rec, true
}
