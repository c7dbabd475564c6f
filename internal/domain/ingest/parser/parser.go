// Package parser turns bank statement files (CSV, XLSX, PDF) into raw
// transaction records. Parsers are tolerant: a malformed row becomes a
// row-level error in the result, never a failure of the whole file.
package parser

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is one statement line before normalization. Amount keeps the
// sign found in the file; direction and absolute value are resolved by the
// ingestion service.
type RawRecord struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	// Type is "debit", "credit" or empty when the file does not say.
	Type string
	// CategoryHint is an optional account code or category label from
	// the file, verbatim.
	CategoryHint string
	// Row is the original row number for error reporting.
	Row int
}

// ParseError describes a problem with a single row.
type ParseError struct {
	Row     int
	Column  string
	Message string
	RawData string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("row %d, column %s: %s", e.Row, e.Column, e.Message)
}

// Result collects the outcome of parsing one file.
type Result struct {
	Records     []RawRecord
	Errors      []ParseError
	TotalRows   int
	ParsedRows  int
	SkippedRows int
}

// Parser reads a statement file into raw records.
type Parser interface {
	Parse(r io.Reader) (*Result, error)
}

// ForType returns the parser for a file type ("csv", "xlsx", "pdf").
func ForType(fileType string) (Parser, bool) {
	switch strings.ToLower(fileType) {
	case "csv":
		return NewCSVParser(), true
	case "xlsx", "xls":
		return NewExcelParser(), true
	case "pdf":
		return NewPDFParser(), true
	default:
		return nil, false
	}
}

var dateFormats = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"2006/01/02",
	"02.01.2006",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// parseDate tries common statement date formats in order.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %s", s)
}

var currencyMarkers = []string{"$", "€", "£", "R$", "USD", "EUR", "GBP", "BRL"}

// parseAmount parses a signed decimal amount. Parenthesized amounts are
// negative, currency symbols and thousands separators are stripped.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	for _, sym := range currencyMarkers {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.Trim(s, "()")
	}
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimPrefix(s, "-")
	}
	s = strings.TrimPrefix(s, "+")

	// 1.234,56 vs 1,234.56: whichever separator comes last is the
	// decimal point.
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	if lastComma > lastDot {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount: %s", s)
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, nil
}

// normalizeType maps the many spellings of direction columns onto
// "debit"/"credit". Unknown values map to empty.
func normalizeType(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debit", "dr", "withdrawal", "expense", "out", "payment":
		return "debit"
	case "credit", "cr", "deposit", "income", "in":
		return "credit"
	default:
		return ""
	}
}

// cleanDescription collapses whitespace and trims statement noise.
func cleanDescription(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
