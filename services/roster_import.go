package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tuitionflow/models"
	"tuitionflow/utils"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// Roster upload columns. Notes is optional.
const (
	colName        = "Name"
	colParentName  = "Parent Name"
	colParentPhone = "Parent Phone"
	colJoiningDate = "Joining Date"
	colMonthlyFee  = "Monthly Fee"
	colNotes       = "Notes"
)

var requiredRosterColumns = []string{colName, colParentName, colParentPhone, colJoiningDate, colMonthlyFee}

// RowError describes one rejected upload row (1-based, header is row 1)
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ParseRoster reads a CSV or XLSX roster. Bad rows are reported and skipped;
// only an unreadable file or a missing column fails the whole upload.
func ParseRoster(filename string, r io.Reader) ([]models.Student, []RowError, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		rows, err = readCSVSimple(r)
	case ".xlsx":
		rows, err = readXLSXSimple(r)
	default:
		return nil, nil, fmt.Errorf("%w: unsupported file type (csv, xlsx)", ErrValidation)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: file is empty", ErrValidation)
	}

	col := mapHeaderIndexes(rows[0])
	for _, name := range requiredRosterColumns {
		if _, ok := col[name]; !ok {
			return nil, nil, fmt.Errorf("%w: missing column: %s", ErrValidation, name)
		}
	}

	var students []models.Student
	var rowErrs []RowError
	for i := 1; i < len(rows); i++ {
		r := rows[i]
		get := func(key string) string {
			if idx, ok := col[key]; ok && idx < len(r) {
				return utils.SanitizeString(r[idx])
			}
			return ""
		}
		if strings.Join(r, "") == "" {
			continue
		}

		s, err := rosterStudent(get)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: i + 1, Message: err.Error()})
			continue
		}
		students = append(students, s)
	}
	return students, rowErrs, nil
}

func rosterStudent(get func(string) string) (models.Student, error) {
	s := models.Student{
		ID:          uuid.NewString(),
		Name:        get(colName),
		ParentName:  get(colParentName),
		ParentPhone: utils.NormalizePhone(get(colParentPhone)),
		Notes:       get(colNotes),
		Status:      models.StatusPending,
	}
	if s.Name == "" {
		return s, fmt.Errorf("name is required")
	}
	if !utils.IsValidPhone(s.ParentPhone) {
		return s, fmt.Errorf("invalid parent phone %q", get(colParentPhone))
	}
	joined, ok := parseRosterDate(get(colJoiningDate))
	if !ok {
		return s, fmt.Errorf("invalid joining date %q", get(colJoiningDate))
	}
	s.JoiningDate = joined
	fee, err := parseFee(get(colMonthlyFee))
	if err != nil {
		return s, err
	}
	s.MonthlyFee = fee
	return s, nil
}

func readCSVSimple(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readXLSXSimple(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sht := f.GetSheetName(0)
	if sht == "" {
		sht = "Sheet1"
	}
	return f.GetRows(sht)
}

func mapHeaderIndexes(header []string) map[string]int {
	m := map[string]int{}
	for i, h := range header {
		// spreadsheets exported on Windows carry a BOM on the first cell
		key := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		m[key] = i
	}
	return m
}

// parseRosterDate accepts ISO dates and the day-first forms Indian spreadsheets use.
func parseRosterDate(s string) (models.Date, bool) {
	if s == "" {
		return models.Date{}, false
	}
	if d, err := models.ParseDate(s); err == nil {
		return d, true
	}
	for _, l := range []string{"02/01/2006", "2/1/2006", "02-01-2006"} {
		if t, err := time.Parse(l, s); err == nil {
			return models.NewDate(t), true
		}
	}
	return models.Date{}, false
}

func parseFee(s string) (int64, error) {
	clean := strings.NewReplacer(",", "", "₹", "", "Rs.", "", "Rs", "", " ", "").Replace(s)
	if clean == "" {
		return 0, fmt.Errorf("monthly fee is required")
	}
	if v, err := strconv.ParseInt(clean, 10, 64); err == nil && v >= 0 {
		return v, nil
	}
	// whole rupees only; Excel often stores 2000 as 2000.00
	if f, err := strconv.ParseFloat(clean, 64); err == nil && f >= 0 && f == float64(int64(f)) {
		return int64(f), nil
	}
	return 0, fmt.Errorf("invalid monthly fee %q", s)
}
