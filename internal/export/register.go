package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/models"
	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/workflow"
)

// RegisterExporter renders requests into Excel workbooks for the printable
// registers the back office files alongside the signed forms.
type RegisterExporter struct {
	registry *workflow.Registry
	logger   *zap.Logger
}

// NewRegisterExporter creates a new exporter.
func NewRegisterExporter(registry *workflow.Registry, logger *zap.Logger) *RegisterExporter {
	return &RegisterExporter{
		registry: registry,
		logger:   logger,
	}
}

const registerSheet = "Register"

// Register builds a workbook listing every request of one form type: one
// row per request, one actor column per workflow stage.
func (e *RegisterExporter) Register(formType string, requests []*models.Request) (*excelize.File, error) {
	def, err := e.registry.Definition(formType)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defaultSheet := f.GetSheetName(0)
	if err := f.SetSheetName(defaultSheet, registerSheet); err != nil {
		return nil, fmt.Errorf("failed to name register sheet: %w", err)
	}

	headers := []interface{}{"Code", "Submitted", "Status"}
	for _, stage := range def.Stages {
		headers = append(headers, stage.Name)
	}
	headers = append(headers, "Declined Reason", "Total Amount")
	if err := f.SetSheetRow(registerSheet, "A1", &headers); err != nil {
		return nil, fmt.Errorf("failed to write register header: %w", err)
	}

	for i, req := range requests {
		row := []interface{}{req.Code, req.CreatedAt.Format("2006-01-02"), req.Status.String()}
		for _, stage := range def.Stages {
			actor := ""
			if record, ok := req.Record(stage.Name); ok {
				actor = record.ActorName
			}
			row = append(row, actor)
		}
		row = append(row, req.DeclinedReason, totalAmount(req.Items))

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to address register row: %w", err)
		}
		if err := f.SetSheetRow(registerSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write register row: %w", err)
		}
	}

	if err := f.SetColWidth(registerSheet, "A", "A", 18); err != nil {
		return nil, fmt.Errorf("failed to size register columns: %w", err)
	}

	e.logger.Info("Register exported",
		zap.String("form_type", formType),
		zap.Int("requests", len(requests)))

	return f, nil
}

const approvalSheet = "Approval"

// ApprovalSheet builds a single-request workbook: the line items followed by
// the stage records, matching the paper form layout.
func (e *RegisterExporter) ApprovalSheet(req *models.Request) (*excelize.File, error) {
	f := excelize.NewFile()
	defaultSheet := f.GetSheetName(0)
	if err := f.SetSheetName(defaultSheet, approvalSheet); err != nil {
		return nil, fmt.Errorf("failed to name approval sheet: %w", err)
	}

	setCell(f, "A1", "Reference Code")
	setCell(f, "B1", req.Code)
	setCell(f, "A2", "Form Type")
	setCell(f, "B2", req.FormType)
	setCell(f, "A3", "Status")
	setCell(f, "B3", req.Status.String())
	setCell(f, "A4", "Submitted")
	setCell(f, "B4", req.CreatedAt.Format("2006-01-02 15:04"))

	rowIdx := 6
	itemHeader := []interface{}{"#", "Description", "Quantity", "Unit", "Amount", "Remarks"}
	if err := f.SetSheetRow(approvalSheet, fmt.Sprintf("A%d", rowIdx), &itemHeader); err != nil {
		return nil, fmt.Errorf("failed to write item header: %w", err)
	}
	for _, item := range req.Items {
		rowIdx++
		row := []interface{}{item.Position + 1, item.Description, item.Quantity, item.Unit, item.Amount, item.Remarks}
		if err := f.SetSheetRow(approvalSheet, fmt.Sprintf("A%d", rowIdx), &row); err != nil {
			return nil, fmt.Errorf("failed to write item row: %w", err)
		}
	}

	rowIdx += 2
	recordHeader := []interface{}{"Stage", "Actor", "Signature", "Date"}
	if err := f.SetSheetRow(approvalSheet, fmt.Sprintf("A%d", rowIdx), &recordHeader); err != nil {
		return nil, fmt.Errorf("failed to write record header: %w", err)
	}
	for _, record := range req.StageRecords {
		rowIdx++
		row := []interface{}{record.Stage, record.ActorName, record.SignatureRef, record.OccurredAt.Format("2006-01-02 15:04")}
		if err := f.SetSheetRow(approvalSheet, fmt.Sprintf("A%d", rowIdx), &row); err != nil {
			return nil, fmt.Errorf("failed to write record row: %w", err)
		}
	}

	if req.Status == models.StatusDeclined {
		rowIdx += 2
		setCell(f, fmt.Sprintf("A%d", rowIdx), "Declined")
		setCell(f, fmt.Sprintf("B%d", rowIdx), req.DeclinedReason)
	}

	return f, nil
}

func setCell(f *excelize.File, cell string, value interface{}) {
	// SetCellValue only errors on malformed coordinates, which are fixed here.
	_ = f.SetCellValue(approvalSheet, cell, value)
}

func totalAmount(items []models.LineItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Amount
	}
	return total
}
