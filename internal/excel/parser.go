package excel

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/24ep/studio-sub000/internal/model"
	"github.com/24ep/studio-sub000/pkg/errors"

	"github.com/xuri/excelize/v2"
)

var requiredColumns = []string{"name", "email"}

type Parser struct {
	maxRows int
}

// NewParser limits a workbook to maxRows data rows; zero means no limit.
func NewParser(maxRows int) *Parser {
	return &Parser{maxRows: maxRows}
}

// Parse reads the first worksheet. Header problems fail the whole file; rows
// are returned as found and checked later by the Validator.
func (p *Parser) Parse(ctx context.Context, data []byte) ([]model.CandidateRow, error) {
	if len(data) == 0 {
		return nil, errors.ErrEmptyFile
	}

	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidFileFormat, err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ErrInvalidFileFormat
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	if len(rows) < 2 {
		return nil, errors.ErrEmptyFile
	}

	columnMap := make(map[string]int)
	for i, col := range rows[0] {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(col)), " ", "_")
		if _, dup := columnMap[key]; !dup {
			columnMap[key] = i
		}
	}

	for _, col := range requiredColumns {
		if _, exists := columnMap[col]; !exists {
			return nil, fmt.Errorf("%w: missing required column: %s", errors.ErrSchemaValidation, col)
		}
	}

	var out []model.CandidateRow
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		if p.maxRows > 0 && len(out) >= p.maxRows {
			return nil, fmt.Errorf("%w: more than %d rows", errors.ErrFileTooLarge, p.maxRows)
		}
		out = append(out, p.parseRow(row, columnMap, i+2))
	}

	if len(out) == 0 {
		return nil, errors.ErrEmptyFile
	}
	return out, nil
}

func (p *Parser) parseRow(row []string, columnMap map[string]int, rowNum int) model.CandidateRow {
	getValue := func(colName string) string {
		if idx, exists := columnMap[colName]; exists && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	c := model.CandidateRow{
		Row:   rowNum,
		Name:  getValue("name"),
		Email: strings.ToLower(getValue("email")),
		Phone: getValue("phone"),
		Stage: getValue("stage"),
	}
	if pos := getValue("position_id"); pos != "" {
		c.PositionID = &pos
	}
	return c
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
