package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"tuitionflow/models"

	"github.com/xuri/excelize/v2"
)

// ExportHeader is the column layout shared by the CSV, XLSX and sheet exports.
var ExportHeader = []string{"Date", "Student Name", "Amount", "Method"}

const xlsxSheetName = "Payments"

func exportRow(r models.PaymentRecord) []string {
	return []string{r.Date.String(), r.StudentName, strconv.FormatInt(r.Amount, 10), string(r.Method)}
}

// WriteCSV writes the payment history with quoting handled by encoding/csv.
func WriteCSV(w io.Writer, records []models.PaymentRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(exportRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// BuildCSV is WriteCSV into memory.
func BuildCSV(records []models.PaymentRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildXLSX renders the payment history as a one-sheet workbook.
func BuildXLSX(records []models.PaymentRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheetName); err != nil {
		return nil, err
	}
	header := make([]interface{}, len(ExportHeader))
	for i, h := range ExportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(xlsxSheetName, "A1", &header); err != nil {
		return nil, err
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{r.Date.String(), r.StudentName, r.Amount, string(r.Method)}
		if err := f.SetSheetRow(xlsxSheetName, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
