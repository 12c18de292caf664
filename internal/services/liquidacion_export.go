package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"restopos/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary   = "Resumen"
	sheetOrders    = "Pedidos"
	sheetExpenses  = "Gastos"
	sheetMovements = "Movimientos"
	dateLayout     = "2006-01-02 15:04"
)

// ExportFilename is the download name of a batch workbook.
func ExportFilename(l *models.Liquidacion) string {
	return fmt.Sprintf("liquidacion-%d-%s.xlsx", l.ID, l.Date.Format("20060102"))
}

// Export renders one batch as an XLSX workbook with a summary sheet and one
// sheet each for orders, expenses and cash movements.
func (s *LiquidacionService) Export(ctx context.Context, tenantID, id uint) (*models.Liquidacion, *bytes.Buffer, error) {
	l, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := buildWorkbook(l)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, nil, fmt.Errorf("write workbook: %w", err)
	}
	return l, buf, nil
}

func buildWorkbook(l *models.Liquidacion) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetOrders, sheetExpenses, sheetMovements} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E0E0E0"}},
	})
	if err != nil {
		return nil, err
	}

	summary := [][]interface{}{
		{"Liquidación", l.ID},
		{"Fecha", l.Date.Format(dateLayout)},
		{"Caja inicial", l.OpeningCash.InexactFloat64()},
		{"Total pedidos", l.IncomeTotal.InexactFloat64()},
		{"Total gastos", l.ExpenseTotal.InexactFloat64()},
		{"Movimientos de caja", l.MovementsNet.InexactFloat64()},
		{"Caja final", l.ClosingCash.InexactFloat64()},
		{"Cantidad de pedidos", l.OrderCount},
		{"Cantidad de gastos", l.ExpenseCount},
		{"Observaciones", l.Observations},
	}
	if err := writeRows(f, sheetSummary, summary); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetSummary, "A1", fmt.Sprintf("A%d", len(summary)), header); err != nil {
		return nil, err
	}

	orders := [][]interface{}{{"ID", "Fecha", "Mesa", "Productos", "Método de pago", "Origen", "Total"}}
	for _, o := range l.Orders {
		names := make([]string, 0, len(o.Items))
		for _, it := range o.Items {
			names = append(names, fmt.Sprintf("%dx %s", it.Quantity, it.ProductName))
		}
		orders = append(orders, []interface{}{
			o.ID, o.CreatedAt.Format(dateLayout), o.Table, strings.Join(names, ", "),
			o.PaymentMethod, o.Source, o.Total.InexactFloat64(),
		})
	}

	expenses := [][]interface{}{{"ID", "Fecha", "Descripción", "Monto"}}
	for _, e := range l.Expenses {
		for _, line := range e.Lines {
			expenses = append(expenses, []interface{}{e.ID, e.Date.Format(dateLayout), line.Description, line.Amount.InexactFloat64()})
		}
	}

	movements := [][]interface{}{{"Fecha", "Tipo", "Motivo", "Monto"}}
	for _, m := range l.Movements {
		movements = append(movements, []interface{}{m.Date.Format(dateLayout), m.Type, m.Reason, m.Amount.InexactFloat64()})
	}

	for sheet, rows := range map[string][][]interface{}{
		sheetOrders:    orders,
		sheetExpenses:  expenses,
		sheetMovements: movements,
	} {
		if err := writeRows(f, sheet, rows); err != nil {
			return nil, err
		}
		last, _ := excelize.CoordinatesToCellName(len(rows[0]), 1)
		if err := f.SetCellStyle(sheet, "A1", last, header); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}
	}
	return f.SetColWidth(sheet, "A", "G", 18)
}
