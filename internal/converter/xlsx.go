package converter

import (
	"context"
	"strings"

	"github.com/xuri/excelize/v2"

	"docconvert/internal/model"
)

func (c *Converter) convertXLSX(_ context.Context, path string) model.ConversionResult {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return model.Failure("Error converting Excel: %v", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return model.Failure("Error converting Excel: %v", err)
		}
		sb.WriteString("# " + sheet + "\n\n")
		if kept := sheetRows(rows, c.sheetRowLimit); len(kept) > 0 {
			sb.WriteString(pipeTable(kept))
			sb.WriteString("\n")
		}
	}
	return model.Success(sb.String())
}

// sheetRows drops rows with no content, keeps at most limit rows and pads
// every row to the widest one so the table stays rectangular.
func sheetRows(rows [][]string, limit int) [][]string {
	var kept [][]string
	width := 0
	for _, row := range rows {
		if !rowHasContent(row) {
			continue
		}
		if limit > 0 && len(kept) == limit {
			break
		}
		kept = append(kept, row)
		if len(row) > width {
			width = len(row)
		}
	}
	for i, row := range kept {
		if len(row) < width {
			padded := make([]string, width)
			copy(padded, row)
			kept[i] = padded
		}
	}
	return kept
}

func rowHasContent(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return true
		}
	}
	return false
}
