// Package export renders reservation lists as Excel workbooks.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/iliyamo/field-reservation/internal/repository"
)

// SheetName is the worksheet that holds the reservation rows.
const SheetName = "Reservations"

var headers = []string{
	"ID", "Date", "Start", "End", "Field", "Location", "Customer", "Email", "Phone",
	"Total", "Status", "Payment", "Payment notes", "Notes", "Created at",
}

// WriteReservations writes rows as an XLSX workbook to w.
func WriteReservations(w io.Writer, rows []repository.ReservationDetail) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
		_ = f.SetCellStyle(SheetName, cell, cell, headStyle)
	}

	for i, r := range rows {
		row := i + 2
		values := []any{
			r.ID, r.Date, r.StartTime, r.EndTime, r.FieldName, r.FieldLocation,
			r.UserName, r.UserEmail, deref(r.UserPhone), r.TotalPrice,
			string(r.Status), string(r.PaymentStatus), deref(r.PaymentNotes), deref(r.Notes),
			r.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 8)
	_ = f.SetColWidth(SheetName, "B", "D", 12)
	_ = f.SetColWidth(SheetName, "E", "O", 22)
	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
