package excel

import (
	"context"

	"github.com/24ep/studio-sub000/internal/model"
)

type ParsingStrategy interface {
	Parse(ctx context.Context, data []byte) ([]model.CandidateRow, error)
	Validate(ctx context.Context, rows []model.CandidateRow) ([]model.CandidateRow, []RowError)
}

type ExcelStrategy struct {
	parser    *Parser
	validator *Validator
}

func NewExcelStrategy(maxRows int) ParsingStrategy {
	return &ExcelStrategy{
		parser:    NewParser(maxRows),
		validator: NewValidator(),
	}
}

func (s *ExcelStrategy) Parse(ctx context.Context, data []byte) ([]model.CandidateRow, error) {
	return s.parser.Parse(ctx, data)
}

func (s *ExcelStrategy) Validate(ctx context.Context, rows []model.CandidateRow) ([]model.CandidateRow, []RowError) {
	return s.validator.Validate(ctx, rows)
}
