package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/banshee-data/occupancy.report/internal/parking"
)

// Sheet names of the XLSX workbook.
const (
	sheetSummary     = "Summary"
	sheetTransitions = "Transitions"
	sheetSnapshots   = "Snapshots"
)

// WriteXLSX writes the metrics export as a three-sheet workbook: a
// Summary sheet with the aggregate metrics and peak hours, plus one
// sheet each for the transition and snapshot streams.
func WriteXLSX(w io.Writer, exp *parking.MetricsExport) error {
	f := excelize.NewFile()
	// WriteTo needs the file open, so Close only happens on the error
	// paths and after the final write.

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeSummarySheet(f, headerStyle, exp); err != nil {
		f.Close()
		return err
	}
	if err := writeTransitionsSheet(f, headerStyle, exp.Transitions); err != nil {
		f.Close()
		return err
	}
	if err := writeSnapshotsSheet(f, headerStyle, exp.Snapshots); err != nil {
		f.Close()
		return err
	}

	// Drop the default sheet and land on Summary.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	if index, err := f.GetSheetIndex(sheetSummary); err == nil {
		f.SetActiveSheet(index)
	}

	if _, err := f.WriteTo(w); err != nil {
		f.Close()
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, headerStyle int, exp *parking.MetricsExport) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Total transitions", exp.Summary.TotalTransitions},
		{"Total snapshots", exp.Summary.TotalSnapshots},
		{"Avg turnover rate (events/hour)", exp.Summary.AvgTurnoverRate},
		{"Avg dwell duration (seconds)", exp.Summary.AvgDwellDuration},
	}
	for i, row := range rows {
		if err := setRow(f, sheetSummary, i+1, row); err != nil {
			return err
		}
	}
	if err := styleHeaderRow(f, sheetSummary, headerStyle, 2); err != nil {
		return err
	}

	// Peak hours block below the aggregates, with its own header row.
	base := len(rows) + 2
	if err := setRow(f, sheetSummary, base, []interface{}{"Peak Hour", "Avg Occupancy Rate"}); err != nil {
		return err
	}
	for i, ph := range exp.Summary.PeakHours {
		row := []interface{}{
			ph.Hour.UTC().Format(time.RFC3339),
			ph.AvgOccupancyRate,
		}
		if err := setRow(f, sheetSummary, base+1+i, row); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheetSummary, "A", "A", 34); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return f.SetColWidth(sheetSummary, "B", "B", 22)
}

func writeTransitionsSheet(f *excelize.File, headerStyle int, recs []parking.TransitionRecord) error {
	if _, err := f.NewSheet(sheetTransitions); err != nil {
		return fmt.Errorf("failed to create transitions sheet: %w", err)
	}

	header := []interface{}{"Space", "Old State", "New State", "Timestamp", "Dwell (s)"}
	if err := setRow(f, sheetTransitions, 1, header); err != nil {
		return err
	}
	if err := styleHeaderRow(f, sheetTransitions, headerStyle, len(header)); err != nil {
		return err
	}
	for i, rec := range recs {
		row := []interface{}{
			rec.SpaceID,
			string(rec.OldState),
			string(rec.NewState),
			rec.Timestamp.UTC().Format(time.RFC3339),
			rec.DwellSeconds,
		}
		if err := setRow(f, sheetTransitions, i+2, row); err != nil {
			return err
		}
	}
	return freezeHeader(f, sheetTransitions)
}

func writeSnapshotsSheet(f *excelize.File, headerStyle int, snaps []parking.Snapshot) error {
	if _, err := f.NewSheet(sheetSnapshots); err != nil {
		return fmt.Errorf("failed to create snapshots sheet: %w", err)
	}

	header := []interface{}{"Timestamp", "Empty", "Occupied", "Total", "Occupancy Rate"}
	if err := setRow(f, sheetSnapshots, 1, header); err != nil {
		return err
	}
	if err := styleHeaderRow(f, sheetSnapshots, headerStyle, len(header)); err != nil {
		return err
	}
	for i, snap := range snaps {
		row := []interface{}{
			snap.Timestamp.UTC().Format(time.RFC3339),
			snap.EmptyCount,
			snap.OccupiedCount,
			snap.TotalCount,
			snap.OccupancyRate,
		}
		if err := setRow(f, sheetSnapshots, i+2, row); err != nil {
			return err
		}
	}
	return freezeHeader(f, sheetSnapshots)
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to set cell %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func styleHeaderRow(f *excelize.File, sheet string, style, cols int) error {
	last, err := excelize.CoordinatesToCellName(cols, 1)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("failed to style header row: %w", err)
	}
	return nil
}

func freezeHeader(f *excelize.File, sheet string) error {
	err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
	if err != nil {
		return fmt.Errorf("failed to freeze header row: %w", err)
	}
	return nil
}
