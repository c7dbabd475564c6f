package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
)

func init() {
	// Banks are not consistent about header casing.
	gocsv.SetHeaderNormalizer(strings.ToLower)
}

// csvRow holds one raw CSV row. Tags cover the common header spellings so
// gocsv can bind by name regardless of which bank exported the file.
type csvRow struct {
	Date      string `csv:"date"`
	TxnDate   string `csv:"transaction date"`
	Posted    string `csv:"posted date"`
	ValueDate string `csv:"value date"`

	Description string `csv:"description"`
	Merchant    string `csv:"merchant"`
	Payee       string `csv:"payee"`
	Details     string `csv:"details"`
	Memo        string `csv:"memo"`
	Narrative   string `csv:"narrative"`

	Amount string `csv:"amount"`
	Value  string `csv:"value"`

	Debit      string `csv:"debit"`
	Withdrawal string `csv:"withdrawal"`
	Credit     string `csv:"credit"`
	Deposit    string `csv:"deposit"`

	Type      string `csv:"type"`
	Direction string `csv:"direction"`

	Category string `csv:"category"`
	Account  string `csv:"account"`
}

// CSVParser parses comma-separated statements via header-name binding.
type CSVParser struct{}

// NewCSVParser creates a CSV statement parser.
func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

// Parse reads every row, collecting malformed ones as row-level errors.
func (p *CSVParser) Parse(r io.Reader) (*Result, error) {
	var rows []csvRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	result := &Result{TotalRows: len(rows)}
	for i, row := range rows {
		rowNum := i + 2 // 1-indexed plus header

		rec, perr := p.processRow(row, rowNum)
		if perr != nil {
			result.Errors = append(result.Errors, *perr)
			continue
		}
		if rec == nil {
			result.SkippedRows++
			continue
		}
		result.Records = append(result.Records, *rec)
		result.ParsedRows++
	}
	return result, nil
}

func (p *CSVParser) processRow(row csvRow, rowNum int) (*RawRecord, *ParseError) {
	dateStr := coalesce(row.Date, row.TxnDate, row.Posted, row.ValueDate)
	if dateStr == "" {
		return nil, nil // blank or summary row
	}
	date, err := parseDate(dateStr)
	if err != nil {
		return nil, &ParseError{Row: rowNum, Column: "date", Message: err.Error(), RawData: dateStr}
	}

	desc := coalesce(row.Description, row.Merchant, row.Payee, row.Details, row.Memo, row.Narrative)
	if desc == "" {
		return nil, &ParseError{Row: rowNum, Column: "description", Message: "missing description"}
	}

	rec := &RawRecord{
		Date:         date,
		Description:  cleanDescription(desc),
		Type:         normalizeType(coalesce(row.Type, row.Direction)),
		CategoryHint: coalesce(row.Category, row.Account),
		Row:          rowNum,
	}

	if amountStr := coalesce(row.Amount, row.Value); amountStr != "" {
		amount, err := parseAmount(amountStr)
		if err != nil {
			return nil, &ParseError{Row: rowNum, Column: "amount", Message: err.Error(), RawData: amountStr}
		}
		rec.Amount = amount
		// Sign carries direction when no explicit type column is set.
		if rec.Type == "" && amount.IsNegative() {
			rec.Type = "debit"
		}
		return rec, nil
	}

	debitStr := coalesce(row.Debit, row.Withdrawal)
	creditStr := coalesce(row.Credit, row.Deposit)
	switch {
	case debitStr != "":
		amount, err := parseAmount(debitStr)
		if err != nil {
			return nil, &ParseError{Row: rowNum, Column: "debit", Message: err.Error(), RawData: debitStr}
		}
		rec.Amount = amount.Abs().Neg()
		rec.Type = "debit"
	case creditStr != "":
		amount, err := parseAmount(creditStr)
		if err != nil {
			return nil, &ParseError{Row: rowNum, Column: "credit", Message: err.Error(), RawData: creditStr}
		}
		rec.Amount = amount.Abs()
		rec.Type = "credit"
	default:
		return nil, &ParseError{Row: rowNum, Column: "amount", Message: "no amount found"}
	}
	return rec, nil
}
