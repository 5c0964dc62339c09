package http

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	registry "gridmarket/internal/registry/domain"
	servicelog "gridmarket/internal/servicelog/domain"
)

// BuildStationsCSV renders the station registry as CSV.
func BuildStationsCSV(stations []registry.Station) ([]byte, error) {
	var buf bytes.Buffer
	wr := csv.NewWriter(&buf)
	header := []string{
		"id", "organization", "generation_type", "state",
		"latitude", "longitude",
		"installed_capacity", "sell_capacity", "target_reserve",
		"price_per_unit", "surcharge", "time_created", "last_updated",
	}
	if err := wr.Write(header); err != nil {
		return nil, err
	}
	for _, st := range stations {
		surcharge := ""
		if st.Surcharge.Set {
			surcharge = strconv.FormatInt(st.Surcharge.Amount, 10)
		}
		row := []string{
			strconv.FormatInt(st.ID, 10),
			st.Organization,
			string(st.GenerationType),
			string(st.State),
			strconv.FormatInt(st.Coordinates.Latitude, 10),
			strconv.FormatInt(st.Coordinates.Longitude, 10),
			strconv.FormatInt(st.InstalledCapacity, 10),
			strconv.FormatInt(st.SellCapacity, 10),
			strconv.FormatInt(st.TargetReserve, 10),
			strconv.FormatInt(st.PricePerUnit, 10),
			surcharge,
			st.TimeCreated.Format(time.RFC3339),
			st.LastUpdated.Format(time.RFC3339),
		}
		if err := wr.Write(row); err != nil {
			return nil, err
		}
	}
	wr.Flush()
	if err := wr.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStationsXLSX renders the station registry as an XLSX workbook.
func BuildStationsXLSX(stations []registry.Station) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "stations"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{
		"ID", "Organization", "Generation Type", "State",
		"Latitude", "Longitude",
		"Installed Capacity", "Sell Capacity", "Target Reserve",
		"Price Per Unit", "Surcharge", "Created", "Updated",
	}
	for i, head := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(sheet, cell, head)
	}
	for i, st := range stations {
		row := i + 2
		values := []any{
			st.ID, st.Organization, string(st.GenerationType), string(st.State),
			st.Coordinates.Latitude, st.Coordinates.Longitude,
			st.InstalledCapacity, st.SellCapacity, st.TargetReserve,
			st.PricePerUnit, surchargeCell(st), st.TimeCreated.Format(time.RFC3339), st.LastUpdated.Format(time.RFC3339),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func surchargeCell(st registry.Station) any {
	if st.Surcharge.Set {
		return st.Surcharge.Amount
	}
	return "unset"
}

// BuildStationPDF renders a station report with its service log table.
func BuildStationPDF(st registry.Station, records []servicelog.Record) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Station Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Station: %d", st.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Organization: %s", st.Organization))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generation Type: %s", st.GenerationType))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("State: %s", st.State))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Installed Capacity: %d", st.InstalledCapacity))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Sell Capacity: %d", st.SellCapacity))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Target Reserve: %d", st.TargetReserve))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Price Per Unit: %d", st.PricePerUnit))
	pdf.Ln(5)
	if st.Surcharge.Set {
		pdf.Cell(0, 6, fmt.Sprintf("Surcharge: %d", st.Surcharge.Amount))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Registered: %s", st.TimeCreated.Format(time.RFC3339)))
	pdf.Ln(8)

	// Service log table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(20, 6, "#", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Reported At", "1", 0, "C", false, 0, "")
	pdf.CellFormat(100, 6, "Report Ref", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for i, rec := range records {
		pdf.CellFormat(20, 6, strconv.Itoa(i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, rec.ReportedAt.Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(100, 6, rec.ReportRef, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
