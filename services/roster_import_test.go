package services

import (
	"bytes"
	"strings"
	"testing"

	"tuitionflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseRosterCSV(t *testing.T) {
	csvData := "Name,Parent Name,Parent Phone,Joining Date,Monthly Fee,Notes\n" +
		"Kabir,Mr. Rao,+91 98765 43213,2025-04-10,\"1,800\",Maths\n" +
		"Meera,Mrs. Iyer,919876543214,10/05/2025,₹2200,\n" +
		",Nobody,919876543215,2025-01-01,100,\n" +
		"Dev,Mr. Das,12345,2025-01-01,100,\n" +
		"Ira,Ms. Paul,919876543216,someday,100,\n" +
		"\n"

	students, rowErrs, err := ParseRoster("roster.csv", strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, students, 2)

	assert.Equal(t, "Kabir", students[0].Name)
	assert.Equal(t, "919876543213", students[0].ParentPhone)
	assert.Equal(t, int64(1800), students[0].MonthlyFee)
	assert.Equal(t, "Maths", students[0].Notes)
	assert.NotEmpty(t, students[0].ID)

	assert.Equal(t, "2025-05-10", students[1].JoiningDate.String())
	assert.Equal(t, int64(2200), students[1].MonthlyFee)

	require.Len(t, rowErrs, 3)
	assert.Equal(t, 4, rowErrs[0].Row)
	assert.Contains(t, rowErrs[0].Message, "name")
	assert.Contains(t, rowErrs[1].Message, "phone")
	assert.Contains(t, rowErrs[2].Message, "joining date")
}

func TestParseRosterRejectsBadFiles(t *testing.T) {
	_, _, err := ParseRoster("roster.pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = ParseRoster("roster.csv", strings.NewReader("Name,Parent Name\nA,B\n"))
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "Parent Phone")

	_, _, err = ParseRoster("roster.csv", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseRosterXLSX(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Name", "Parent Name", "Parent Phone", "Joining Date", "Monthly Fee"},
		{"Tara", "Mr. Bose", "919876543217", "2025-02-28", 2500},
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := r
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	students, rowErrs, err := ParseRoster("ROSTER.XLSX", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, students, 1)
	assert.Equal(t, "Tara", students[0].Name)
	assert.Equal(t, int64(2500), students[0].MonthlyFee)
	assert.Equal(t, models.StatusPending, students[0].Status)
}

func TestParseFee(t *testing.T) {
	v, err := parseFee("2000.00")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), v)

	_, err = parseFee("2000.50")
	assert.Error(t, err)
	_, err = parseFee("-5")
	assert.Error(t, err)
}
