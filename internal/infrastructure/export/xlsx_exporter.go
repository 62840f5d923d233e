// Package export renders settlement reports as spreadsheets.
package export

import (
	"context"
	"fmt"

	appfee "github.com/feesettle/backend/internal/application/fee"
	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Sheet names
const (
	SheetSummary   = "Summary"
	SheetClasswise = "Classwise"
	SheetInvoices  = "Invoices"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Built-in number format "#,##0.00"
const amountNumFmt = 4

var (
	classwiseHeader = []interface{}{"Class", "Invoices", "Billed", "Paid", "Outstanding", "Collection %"}
	invoicesHeader  = []interface{}{
		"Invoice Number", "Student ID", "Class", "Due Date", "Status",
		"Total", "Discount", "Round Off", "Paid", "Balance", "Settled", "Settled Date",
	}
)

// XLSXExporter writes a workbook with a Summary, a Classwise and an
// Invoices sheet
type XLSXExporter struct{}

// NewXLSXExporter creates an XLSXExporter
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// ContentType returns the XLSX media type
func (e *XLSXExporter) ContentType() string {
	return xlsxContentType
}

// FileExtension returns ".xlsx"
func (e *XLSXExporter) FileExtension() string {
	return ".xlsx"
}

// Export renders report as an XLSX workbook
func (e *XLSXExporter) Export(ctx context.Context, report appfee.SettlementReport) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	w, err := newWorkbook(f)
	if err != nil {
		return nil, err
	}

	if err := w.writeSummary(report); err != nil {
		return nil, fmt.Errorf("summary sheet: %w", err)
	}
	if err := w.writeClasswise(report.Summary.Classwise); err != nil {
		return nil, fmt.Errorf("classwise sheet: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := w.writeInvoices(report); err != nil {
		return nil, fmt.Errorf("invoices sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

type workbook struct {
	f           *excelize.File
	headerStyle int
	amountStyle int
}

func newWorkbook(f *excelize.File) (*workbook, error) {
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{SheetClasswise, SheetInvoices} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: amountNumFmt})
	if err != nil {
		return nil, err
	}
	return &workbook{f: f, headerStyle: headerStyle, amountStyle: amountStyle}, nil
}

func (w *workbook) writeSummary(report appfee.SettlementReport) error {
	s := report.Summary
	t := s.Totals
	rows := [][]interface{}{
		{"Academic Year", report.AcademicYear.Name},
		{"As Of", s.AsOf.Format("2006-01-02")},
		{"Invoices", t.InvoiceCount},
		{"Total Billed", amount(t.TotalBilled)},
		{"Total Paid", amount(t.TotalPaid)},
		{"Total Outstanding", amount(t.TotalOutstanding)},
		{"Total Discount", amount(t.TotalDiscount)},
		{"Total Round Off", amount(t.TotalRoundOff)},
		{"Collection %", amount(t.CollectionPercentage)},
		{"Settled", s.SettledCount},
		{"Unsettled", s.UnsettledCount},
		{},
		{"Status", "Invoices"},
	}
	for _, st := range fee.AllInvoiceStatuses() {
		rows = append(rows, []interface{}{string(st), s.StatusBreakdown[st]})
	}

	for i, row := range rows {
		if err := w.setRow(SheetSummary, i+1, row); err != nil {
			return err
		}
	}
	if err := w.styleRange(SheetSummary, "B4", "B9", w.amountStyle); err != nil {
		return err
	}
	if err := w.styleRange(SheetSummary, "A13", "B13", w.headerStyle); err != nil {
		return err
	}
	if err := w.styleRange(SheetSummary, "A1", "A11", w.headerStyle); err != nil {
		return err
	}
	return w.f.SetColWidth(SheetSummary, "A", "B", 22)
}

func (w *workbook) writeClasswise(classes []fee.ClassSummary) error {
	if err := w.setHeader(SheetClasswise, classwiseHeader); err != nil {
		return err
	}
	for i, c := range classes {
		row := []interface{}{
			c.ClassName,
			c.InvoiceCount,
			amount(c.TotalBilled),
			amount(c.TotalPaid),
			amount(c.Outstanding),
			amount(c.CollectionPercentage),
		}
		if err := w.setRow(SheetClasswise, i+2, row); err != nil {
			return err
		}
	}
	if len(classes) > 0 {
		last := fmt.Sprintf("F%d", len(classes)+1)
		if err := w.styleRange(SheetClasswise, "C2", last, w.amountStyle); err != nil {
			return err
		}
	}
	return w.f.SetColWidth(SheetClasswise, "A", "F", 16)
}

func (w *workbook) writeInvoices(report appfee.SettlementReport) error {
	if err := w.setHeader(SheetInvoices, invoicesHeader); err != nil {
		return err
	}

	classNames := make(map[uuid.UUID]string, len(report.Summary.Classwise))
	for _, c := range report.Summary.Classwise {
		classNames[c.ClassID] = c.ClassName
	}

	for i, inv := range report.Invoices {
		settledDate := ""
		if inv.SettledDate != nil {
			settledDate = inv.SettledDate.Format("2006-01-02")
		}
		row := []interface{}{
			inv.InvoiceNumber,
			inv.StudentID.String(),
			classNames[inv.ClassID],
			inv.DueDate.Format("2006-01-02"),
			string(inv.Status),
			amount(inv.TotalAmount),
			amount(inv.DiscountAmount),
			amount(inv.RoundOffAmount),
			amount(inv.PaidAmount),
			amount(inv.Balance),
			inv.IsSettled,
			settledDate,
		}
		if err := w.setRow(SheetInvoices, i+2, row); err != nil {
			return err
		}
	}
	if len(report.Invoices) > 0 {
		last := fmt.Sprintf("J%d", len(report.Invoices)+1)
		if err := w.styleRange(SheetInvoices, "F2", last, w.amountStyle); err != nil {
			return err
		}
	}
	if err := w.f.SetColWidth(SheetInvoices, "A", "B", 38); err != nil {
		return err
	}
	return w.f.SetColWidth(SheetInvoices, "C", "L", 14)
}

func (w *workbook) setHeader(sheet string, header []interface{}) error {
	if err := w.setRow(sheet, 1, header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := w.styleRange(sheet, "A1", last, w.headerStyle); err != nil {
		return err
	}
	return w.f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func (w *workbook) setRow(sheet string, row int, values []interface{}) error {
	if len(values) == 0 {
		return nil
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return w.f.SetSheetRow(sheet, cell, &values)
}

func (w *workbook) styleRange(sheet, from, to string, style int) error {
	return w.f.SetCellStyle(sheet, from, to, style)
}

// amount converts money to a spreadsheet number for display
func amount(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// Ensure XLSXExporter implements SummaryExporter
var _ appfee.SummaryExporter = (*XLSXExporter)(nil)
