package export

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"pdf-order-extractor/orders"
)

var log = logrus.New()

// SheetName is the single sheet of an export workbook.
const SheetName = "All PDF Data"

// Placeholder replaces empty values in exported cells.
const Placeholder = "-"

// ErrNoRecords is returned when there is nothing to export.
var ErrNoRecords = errors.New("no data to export")

// Column describes one exported column.
type Column struct {
	Header string
	Field  string
	Width  float64
}

// Columns is the fixed column layout of the export.
var Columns = []Column{
	{Header: "Order ID", Field: "orderId", Width: 12},
	{Header: "Remarks", Field: "remarks", Width: 15},
	{Header: "Customer Code", Field: "customerCode", Width: 15},
	{Header: "Customer Name", Field: "customerName", Width: 25},
	{Header: "Delivery Date", Field: "deliveryDate", Width: 12},
	{Header: "Name", Field: "name", Width: 25},
	{Header: "Delivery Address #1", Field: "deliveryAddress1", Width: 30},
	{Header: "Delivery Address #2", Field: "deliveryAddress2", Width: 30},
	{Header: "Postal Code", Field: "postalCode", Width: 12},
	{Header: "Product Code", Field: "productCode", Width: 15},
	{Header: "Product Name", Field: "productName", Width: 40},
	{Header: "Quantity", Field: "quantity", Width: 10},
	{Header: "UOM", Field: "uom", Width: 8},
	{Header: "Unit Price", Field: "unitPrice", Width: 12},
}

// Filename names an export created at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("All_PDF_Data_Export_%s.xlsx", t.Format("20060102"))
}

// CellValue is the exported form of a field value.
func CellValue(v string) string {
	if v == "" {
		return Placeholder
	}
	return v
}

// WriteXLSX writes records as a workbook to w. Records are not modified.
func WriteXLSX(w io.Writer, records []orders.FlatRecord) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.WithError(err).Warn("Failed to close workbook")
		}
	}()

	// Rename the default sheet instead of adding a second one.
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, col := range Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(SheetName, cell, col.Header); err != nil {
			return fmt.Errorf("write header %q: %w", col.Header, err)
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, name, name, col.Width); err != nil {
			return fmt.Errorf("set width of %s: %w", name, err)
		}
	}

	for r := range records {
		rec := &records[r]
		for i, col := range Columns {
			value, _ := rec.Field(col.Field)
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellStr(SheetName, cell, CellValue(value)); err != nil {
				return fmt.Errorf("write cell %s: %w", cell, err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	log.WithField("rows", len(records)).Info("Exported records to XLSX")
	return nil
}

// SetLogLevel sets the logging level for the export package
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}
