package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/assoconnect/approval-flow/internal/domain/entity"
)

// Workbook is what handlers stream back to the client
type Workbook interface {
	Write(w io.Writer, opts ...excelize.Options) error
}

// Exporter renders inboxes and audit trails as XLSX workbooks for the
// bureau's offline reporting.
type Exporter struct {
	logger *zap.Logger
}

// NewExporter creates a new exporter
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger}
}

const timeLayout = "2006-01-02 15:04:05"

// InboxWorkbook builds a workbook listing the documents pending at one stage
func (e *Exporter) InboxWorkbook(docType, stage string, docs []*entity.Document) (Workbook, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	e.setCell(f, sheet, "A1", fmt.Sprintf("Pending %s at %s", docType, stage))

	headers := []string{"ID", "Title", "Originator", "Originator Role", "Stage", "Created", "Updated"}
	for i, hd := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		e.setCell(f, sheet, cell, hd)
	}

	for row, doc := range docs {
		values := []string{
			doc.ID,
			doc.Title,
			doc.OriginatorID,
			doc.OriginatorRole.String(),
			doc.Stage.String(),
			doc.CreatedAt.Format(timeLayout),
			doc.UpdatedAt.Format(timeLayout),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+4)
			e.setCell(f, sheet, cell, v)
		}
	}

	e.logger.Info("Inbox workbook built",
		zap.String("document_type", docType),
		zap.String("stage", stage),
		zap.Int("documents", len(docs)))
	return f, nil
}

// HistoryWorkbook builds a workbook with a document's audit trail
func (e *Exporter) HistoryWorkbook(doc *entity.Document) (Workbook, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	e.setCell(f, sheet, "A1", fmt.Sprintf("Audit trail for %s (%s)", doc.Title, doc.ID))
	e.setCell(f, sheet, "A2", fmt.Sprintf("Current stage: %s", doc.Stage))

	headers := []string{"#", "From", "To", "Actor", "Role", "Action", "Note", "Timestamp"}
	for i, hd := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 4)
		e.setCell(f, sheet, cell, hd)
	}

	for row, rec := range doc.History {
		values := []string{
			fmt.Sprintf("%d", row+1),
			rec.FromStage.String(),
			rec.ToStage.String(),
			rec.ActorID,
			rec.ActorRole.String(),
			rec.Action,
			rec.Note,
			rec.Timestamp.Format(timeLayout),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+5)
			e.setCell(f, sheet, cell, v)
		}
	}

	e.logger.Info("History workbook built",
		zap.String("id", doc.ID),
		zap.Int("records", len(doc.History)))
	return f, nil
}

func (e *Exporter) setCell(f *excelize.File, sheet, cell, value string) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		e.logger.Warn("Failed to set cell",
			zap.String("cell", cell),
			zap.Error(err))
	}
}
