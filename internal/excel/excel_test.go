package excel

import (
	"context"
	"testing"

	intaketest "github.com/24ep/studio-sub000/internal/testing"
	"github.com/24ep/studio-sub000/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCandidateWorkbook(t *testing.T) {
	data := intaketest.Workbook(t, [][]string{
		{"Name", "Email", "Phone", "Position ID", "Stage"},
		{"Ada Lovelace", "ADA@example.com", "+44 20 7946 0958", "pos-1", "Screening"},
		{"", "", "", "", ""},
		{"Grace Hopper", "grace@example.com"},
	})

	rows, err := NewParser(0).Parse(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Row)
	assert.Equal(t, "ada@example.com", rows[0].Email)
	require.NotNil(t, rows[0].PositionID)
	assert.Equal(t, "pos-1", *rows[0].PositionID)
	assert.Equal(t, "Screening", rows[0].Stage)

	assert.Equal(t, 4, rows[1].Row)
	assert.Nil(t, rows[1].PositionID)
	assert.Empty(t, rows[1].Stage)
}

func TestParseRejectsBadFiles(t *testing.T) {
	ctx := context.Background()
	p := NewParser(2)

	_, err := p.Parse(ctx, nil)
	assert.ErrorIs(t, err, errors.ErrEmptyFile)

	_, err = p.Parse(ctx, []byte("name,email\nada,ada@example.com"))
	assert.ErrorIs(t, err, errors.ErrInvalidFileFormat)

	_, err = p.Parse(ctx, intaketest.Workbook(t, [][]string{{"name", "phone"}, {"Ada", "123456"}}))
	assert.ErrorIs(t, err, errors.ErrSchemaValidation)

	_, err = p.Parse(ctx, intaketest.Workbook(t, [][]string{{"name", "email"}}))
	assert.ErrorIs(t, err, errors.ErrEmptyFile)

	_, err = p.Parse(ctx, intaketest.Workbook(t, [][]string{
		{"name", "email"}, {"A", "a@x.io"}, {"B", "b@x.io"}, {"C", "c@x.io"},
	}))
	assert.ErrorIs(t, err, errors.ErrFileTooLarge)
}

func TestValidateSplitsRows(t *testing.T) {
	s := NewExcelStrategy(0)
	ctx := context.Background()

	rows, err := s.Parse(ctx, intaketest.Workbook(t, [][]string{
		{"name", "email", "phone"},
		{"Ada", "ada@example.com", ""},
		{"Bad Email", "not-an-email", ""},
		{"Bad Phone", "phone@example.com", "call me"},
		{"Ada Again", "ada@example.com", ""},
		{"Linus", "linus@example.org", "555-0100"},
	}))
	require.NoError(t, err)

	valid, rejected := s.Validate(ctx, rows)
	require.Len(t, valid, 2)
	assert.Equal(t, "Ada", valid[0].Name)
	assert.Equal(t, "Linus", valid[1].Name)

	require.Len(t, rejected, 3)
	assert.Equal(t, []int{3, 4, 5}, []int{rejected[0].Row, rejected[1].Row, rejected[2].Row})
	assert.True(t, errors.IsValidation(rejected[2].Err))
	assert.Contains(t, rejected[2].Error(), "duplicates row 2")
}
