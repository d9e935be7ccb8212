package excel

import (
	"context"
	"fmt"
	"regexp"

	"github.com/24ep/studio-sub000/internal/model"
	"github.com/24ep/studio-sub000/pkg/errors"
)

// RowError ties a rejected row to its spreadsheet line.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

type Validator struct {
	emailRegex *regexp.Regexp
	phoneRegex *regexp.Regexp
}

func NewValidator() *Validator {
	return &Validator{
		emailRegex: regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`),
		phoneRegex: regexp.MustCompile(`^\+?[0-9 ()\-]{6,20}$`),
	}
}

// Validate splits rows into importable ones and rejects. A duplicate email
// within the file rejects every occurrence after the first.
func (v *Validator) Validate(ctx context.Context, rows []model.CandidateRow) ([]model.CandidateRow, []RowError) {
	valid := make([]model.CandidateRow, 0, len(rows))
	var rejected []RowError
	seen := make(map[string]int, len(rows))

	for _, row := range rows {
		if err := v.validateRow(row); err != nil {
			rejected = append(rejected, RowError{Row: row.Row, Err: err})
			continue
		}
		if first, dup := seen[row.Email]; dup {
			rejected = append(rejected, RowError{Row: row.Row, Err: errors.ValidationError{
				Field:   "email",
				Value:   row.Email,
				Message: fmt.Sprintf("duplicates row %d", first),
			}})
			continue
		}
		seen[row.Email] = row.Row
		valid = append(valid, row)
	}

	return valid, rejected
}

func (v *Validator) validateRow(row model.CandidateRow) error {
	if len(row.Name) == 0 || len(row.Name) > 200 {
		return errors.ValidationError{
			Field:   "name",
			Value:   row.Name,
			Message: "must be 1-200 characters",
		}
	}

	if !v.emailRegex.MatchString(row.Email) {
		return errors.ValidationError{
			Field:   "email",
			Value:   row.Email,
			Message: "must be a valid email address",
		}
	}

	if row.Phone != "" && !v.phoneRegex.MatchString(row.Phone) {
		return errors.ValidationError{
			Field:   "phone",
			Value:   row.Phone,
			Message: "must be 6-20 digits",
		}
	}

	if len(row.Stage) > 100 {
		return errors.ValidationError{
			Field:   "stage",
			Value:   row.Stage,
			Message: "must be at most 100 characters",
		}
	}

	return nil
}
