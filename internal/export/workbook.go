package export

import (
	"bytes"
	"fmt"
	"time"

	"wisefido-followup/internal/models"
	"wisefido-followup/internal/schedule"

	"github.com/xuri/excelize/v2"
)

const (
	IncidentsSheet = "Incidents"
	ResponsesSheet = "Responses"
	timeLayout     = "2006-01-02 15:04:05"
)

// IncidentsHeader one row per incident
var IncidentsHeader = []string{
	"Incident ID",
	"Child",
	"Logged At",
	"Type",
	"Severity",
	"Remedy",
	"Label",
	"Checkpoints",
	"Answered",
	"Status",
	"Next Due",
	"Next Check",
	"Completed At",
	"Completed By",
}

// ResponsesHeader one row per recorded response
var ResponsesHeader = []string{
	"Incident ID",
	"Checkpoint",
	"Interval",
	"Effectiveness",
	"Notes",
	"Responded At",
	"Responded By",
}

// FollowUpWorkbook XLSX follow-up history: an incidents sheet and a responses sheet
func FollowUpWorkbook(incidents []*models.Incident) ([]byte, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", IncidentsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(ResponsesSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

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
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	incidentRows := make([][]any, 0, len(incidents))
	var responseRows [][]any
	for _, inc := range incidents {
		incidentRows = append(incidentRows, incidentRow(inc))
		for _, resp := range inc.FollowUpResponses {
			responseRows = append(responseRows, []any{
				inc.ID,
				resp.ResponseIndex + 1,
				schedule.FormatInterval(resp.IntervalMinutes),
				resp.Effectiveness,
				resp.Notes,
				resp.Timestamp.Format(timeLayout),
				resp.RespondedBy,
			})
		}
	}

	if err := writeSheet(f, IncidentsSheet, IncidentsHeader, incidentRows, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSheet(f, ResponsesSheet, ResponsesHeader, responseRows, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

// Status open / completed / not_scheduled
func Status(inc *models.Incident) string {
	switch {
	case !inc.FollowUpScheduled:
		return "not_scheduled"
	case inc.FollowUpCompleted:
		return "completed"
	default:
		return "open"
	}
}

func incidentRow(inc *models.Incident) []any {
	child := inc.ChildLabel
	if child == "" {
		child = inc.ChildID
	}
	return []any{
		inc.ID,
		child,
		inc.CreatedAt.Format(timeLayout),
		inc.Type,
		inc.Severity,
		inc.Remedy,
		inc.CustomLabel,
		len(inc.FollowUpTimes),
		len(inc.FollowUpResponses),
		Status(inc),
		formatTime(inc.NextFollowUpDue),
		derefString(inc.NextFollowUpDescription),
		formatTime(inc.FollowUpCompletedAt),
		derefString(inc.CompletedBy),
	}
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any, headerStyle int) error {
	for col, title := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return fmt.Errorf("failed to convert column number: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 20); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeLayout)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
