package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExcelParser parses XLSX statements. The first sheet named like
// "transactions" is used, falling back to the first sheet.
type ExcelParser struct{}

// NewExcelParser creates an XLSX statement parser.
func NewExcelParser() *ExcelParser {
	return &ExcelParser{}
}

type excelColumns struct {
	date, description, amount, debit, credit, txType, category int
}

// Parse reads the sheet, maps headers by name and collects malformed rows
// as row-level errors.
func (p *ExcelParser) Parse(r io.Reader) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := p.findSheet(f)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	result := &Result{}
	if len(rows) == 0 {
		return result, nil
	}

	cols := p.mapColumns(rows[0])
	if cols.date < 0 {
		return nil, fmt.Errorf("sheet %s has no date column", sheet)
	}

	for i := 1; i < len(rows); i++ {
		rowNum := i + 1
		result.TotalRows++

		rec, perr := p.processRow(rows[i], rowNum, cols)
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

func (p *ExcelParser) findSheet(f *excelize.File) string {
	sheets := f.GetSheetList()
	for _, name := range sheets {
		if strings.Contains(strings.ToLower(name), "transaction") {
			return name
		}
	}
	if len(sheets) > 0 {
		return sheets[0]
	}
	return ""
}

func (p *ExcelParser) mapColumns(headers []string) excelColumns {
	cols := excelColumns{date: -1, description: -1, amount: -1, debit: -1, credit: -1, txType: -1, category: -1}
	for i, h := range headers {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "date", "transaction date", "posted date", "value date":
			if cols.date < 0 {
				cols.date = i
			}
		case "description", "merchant", "payee", "details", "memo", "narrative":
			if cols.description < 0 {
				cols.description = i
			}
		case "amount", "value":
			if cols.amount < 0 {
				cols.amount = i
			}
		case "debit", "withdrawal":
			cols.debit = i
		case "credit", "deposit":
			cols.credit = i
		case "type", "direction":
			cols.txType = i
		case "category", "account":
			cols.category = i
		}
	}
	return cols
}

func (p *ExcelParser) processRow(row []string, rowNum int, cols excelColumns) (*RawRecord, *ParseError) {
	cell := func(idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	dateStr := cell(cols.date)
	if dateStr == "" {
		return nil, nil
	}
	date, err := parseDate(dateStr)
	if err != nil {
		return nil, &ParseError{Row: rowNum, Column: "date", Message: err.Error(), RawData: dateStr}
	}

	desc := cell(cols.description)
	if desc == "" {
		return nil, &ParseError{Row: rowNum, Column: "description", Message: "missing description"}
	}

	rec := &RawRecord{
		Date:         date,
		Description:  cleanDescription(desc),
		Type:         normalizeType(cell(cols.txType)),
		CategoryHint: cell(cols.category),
		Row:          rowNum,
	}

	if amountStr := cell(cols.amount); amountStr != "" {
		amount, err := parseAmount(amountStr)
		if err != nil {
			return nil, &ParseError{Row: rowNum, Column: "amount", Message: err.Error(), RawData: amountStr}
		}
		rec.Amount = amount
		if rec.Type == "" && amount.IsNegative() {
			rec.Type = "debit"
		}
		return rec, nil
	}

	if debitStr := cell(cols.debit); debitStr != "" {
		amount, err := parseAmount(debitStr)
		if err != nil {
			return nil, &ParseError{Row: rowNum, Column: "debit", Message: err.Error(), RawData: debitStr}
		}
		rec.Amount = amount.Abs().Neg()
		rec.Type = "debit"
		return rec, nil
	}
	if creditStr := cell(cols.credit); creditStr != "" {
		amount, err := parseAmount(creditStr)
		if err != nil {
			return nil, &ParseError{Row: rowNum, Column: "credit", Message: err.Error(), RawData: creditStr}
		}
		rec.Amount = amount.Abs()
		rec.Type = "credit"
		return rec, nil
	}
	return nil, &ParseError{Row: rowNum, Column: "amount", Message: "no amount found"}
}
