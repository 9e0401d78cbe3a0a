package service

import (
	"context"
	"fmt"

	"github.com/Async-Ng/ElecLab-sub001/internal/identity"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/entity"
	"github.com/xuri/excelize/v2"
)

var requestExportHeaders = []string{
	"ID", "Type", "Title", "Requester", "Priority", "Status",
	"Materials", "Room", "Reviewed By", "Review Note", "Handled By",
	"Completed By", "Completion Note", "Created At", "Updated At",
}

const exportTimeLayout = "2006-01-02 15:04"

// Export 导出请求列表为xlsx, same visibility as List without paging
func (s *RequestService) Export(ctx context.Context, caller identity.Identity, in ListRequestsInput) (*excelize.File, string, error) {
	in.Page, in.PageSize = 1, 0
	result, err := s.List(ctx, caller, in)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := "Requests"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, "", fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, h := range requestExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	for idx, r := range result.Items {
		row := idx + 2
		values := []interface{}{
			r.ID,
			string(r.Type),
			r.Title,
			r.RequesterID,
			string(r.Priority),
			string(r.Status),
			materialSummary(r.Materials),
			r.RoomID,
			r.ReviewedBy,
			r.ReviewNote,
			r.HandledBy,
			r.CompletedBy,
			r.CompletionNote,
			r.CreatedAt.Format(exportTimeLayout),
			r.UpdatedAt.Format(exportTimeLayout),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			f.Close()
			return nil, "", fmt.Errorf("write row %d: %w", row, err)
		}
	}

	colWidths := []float64{34, 18, 30, 34, 10, 12, 30, 12, 34, 30, 34, 34, 30, 18, 18}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	filename := fmt.Sprintf("requests_%s.xlsx", s.now().Format("20060102_150405"))
	return f, filename, nil
}

func materialSummary(lines []entity.MaterialLine) string {
	out := ""
	for i, m := range lines {
		if i > 0 {
			out += "; "
		}
		out += fmt.Sprintf("%s x%d", m.MaterialID, m.Quantity)
	}
	return out
}
